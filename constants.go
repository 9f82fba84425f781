/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package remotefs

const (
	// Version project
	Version = "beta"

	// ServerTypeNFS exports the local filesystem over NFS
	ServerTypeNFS = "nfs"
	// ServerTypeGlusterFS joins the local filesystem as a brick of a gluster volume
	ServerTypeGlusterFS = "glusterfs"

	// FilesystemBtrfs is the pooling filesystem, it manages its own devices instead of md
	FilesystemBtrfs = "btrfs"
	FilesystemExt4  = "ext4"

	// RaidLevelUnset disables array assembly, a single data disk is used as is
	RaidLevelUnset = -1
	// DefaultMdTarget is the md device created when no array exists yet
	DefaultMdTarget = "/dev/md0"

	// GlusterBrickMountPath local filesystem mount point on glusterfs servers
	GlusterBrickMountPath = "/gluster/brick"
	// GlusterBrickLocation brick directory contributed to the volume
	GlusterBrickLocation = "/gluster/brick/brick0"
	// GlusterVolumeName name of the clustered volume
	GlusterVolumeName = "gv0"
	// GlusterDefaultTransport used when the volume options leave it empty
	GlusterDefaultTransport = "tcp"

	DefaultFstabPath   = "/etc/fstab"
	DefaultExportsPath = "/etc/exports"

	NFSServiceName     = "nfs-kernel-server"
	GlusterServiceName = "glusterd"

	// DefaultNetInterface is used to discover this node's address when none is given
	DefaultNetInterface = "eth0"

	ConfigEnvPrefix = "REMOTEFS"
)

// ExcludedDevices os and ephemeral resource disks, never used for data
var ExcludedDevices = []string{"/dev/sda", "/dev/sdb"}
