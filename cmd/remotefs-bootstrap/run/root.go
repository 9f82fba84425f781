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

package run

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/configuration"
	"github.com/carina-io/remotefs/utils/log"
)

var (
	configFile string
	v          = configuration.New()
)

var rootCmd = &cobra.Command{
	Use:     "remotefs-bootstrap",
	Version: remotefs.Version,
	Short:   "Provision data disks and serve them over nfs or glusterfs",
	Long: `remotefs-bootstrap partitions the attached data disks, assembles them into
an md array or btrfs pool, formats and mounts the filesystem, then either
exports it over nfs or joins it as a brick of a gluster volume.

It is safe to run again after a reboot, a partial failure or when disks were
added. Every glusterfs node must be given the same peer list; the first peer
bootstraps the cluster.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return subMain()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		log.Sync()
		os.Exit(1)
	}
}

func init() {
	fs := rootCmd.Flags()
	addFlags(fs)
	cobra.CheckErr(bindFlags(v, fs))
}

func addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&configFile, "config", "", "JSON or YAML configuration file")
	fs.BoolP(configuration.KeyAttach, "a", false, "Attach mode, prepare the disks and stop after format")
	fs.BoolP(configuration.KeyRebalance, "b", false, "Balance a btrfs pool after new devices were added")
	fs.StringP(configuration.KeyFilesystem, "f", remotefs.FilesystemExt4, "Filesystem type: btrfs, ext2, ext3 or ext4")
	fs.StringSliceP(configuration.KeyPeers, "i", nil, "Comma separated peer addresses, the first one bootstraps the cluster")
	fs.StringP(configuration.KeyMountPath, "m", configuration.DefaultMountPath, "Where the served filesystem is mounted")
	fs.BoolP(configuration.KeyTCPTuning, "n", false, "Tune kernel tcp buffers")
	fs.StringP(configuration.KeyServerOptions, "o", "", "Gluster volume options: voltype,transport,key:value,...")
	fs.BoolP(configuration.KeyPremium, "p", false, "Disks are premium storage")
	fs.IntP(configuration.KeyRaidLevel, "r", remotefs.RaidLevelUnset, "Raid level, -1 uses a single disk as is")
	fs.StringP(configuration.KeyServerType, "s", remotefs.ServerTypeNFS, "Server type: nfs or glusterfs")
	fs.BoolP(configuration.KeyVMOffset, "t", false, "Node was provisioned with a vm offset")
	fs.String(configuration.KeySelfIP, "", "Address of this node, read from --interface when empty")
	fs.String(configuration.KeyInterface, remotefs.DefaultNetInterface, "Network interface used to find this node's address")
	fs.String(configuration.KeyFstab, remotefs.DefaultFstabPath, "fstab file")
	fs.String(configuration.KeyExports, remotefs.DefaultExportsPath, "nfs exports file")
	fs.String(configuration.KeyReportFile, "", "Write a run report in the node-exporter textfile format")
	fs.Bool(configuration.KeyDebug, false, "Debug logging")
}

// bindFlags flags override the config file and the environment
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || err != nil {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return err
}
