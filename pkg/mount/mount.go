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

package mount

import (
	"context"
	"os"
	"time"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
	mountutils "k8s.io/mount-utils"
	"k8s.io/utils/clock"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
	"github.com/carina-io/remotefs/utils/poll"
)

const (
	ClientMountInterval = time.Second
	ClientMountTimeout  = 5 * time.Minute
)

// Checker tells whether a path is an active mountpoint
type Checker interface {
	IsMountPoint(path string) (bool, error)
}

// Lister lists the mount table, satisfied by mount-utils
type Lister interface {
	List() ([]mountutils.MountPoint, error)
}

type mountinfoChecker struct{}

func (mountinfoChecker) IsMountPoint(path string) (bool, error) {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return mounted, nil
}

// LocalMount the local filesystem to mount
type LocalMount struct {
	Target     *types.FilesystemTarget
	Path       string
	Premium    bool
	ServerType string
	// BrickDir created below Path once mounted, empty for none
	BrickDir string
}

type Reconciler struct {
	Executor  exec.Executor
	Checker   Checker
	Lister    Lister
	FstabPath string
	Clock     clock.Clock
}

func NewReconciler(executor exec.Executor, fstabPath string) *Reconciler {
	return &Reconciler{
		Executor:  executor,
		Checker:   mountinfoChecker{},
		Lister:    mountutils.New("/bin/mount"),
		FstabPath: fstabPath,
		Clock:     clock.RealClock{},
	}
}

// EnsureMounted persists the uuid keyed fstab entry and mounts the local filesystem
func (r *Reconciler) EnsureMounted(m LocalMount) error {
	if m.Target == nil || m.Target.UUID == "" {
		return errors.Wrapf(types.ErrInvariant, "no filesystem uuid to mount at %s", m.Path)
	}

	mounted, err := r.Checker.IsMountPoint(m.Path)
	if err != nil {
		return errors.Wrapf(err, "check mountpoint %s", m.Path)
	}
	if mounted {
		log.Infof("%s already mounted", m.Path)
		return r.finishLocal(m)
	}

	key := "UUID=" + m.Target.UUID
	added, err := AppendEntry(r.FstabPath, key, FstabEntry(m.Target.UUID, m.Path, m.Target.Filesystem, m.Premium))
	if err != nil {
		return err
	}
	if added {
		log.Infof("added fstab entry for %s at %s", key, m.Path)
	}

	if err := os.MkdirAll(m.Path, 0755); err != nil {
		return errors.Wrapf(err, "create mount directory %s", m.Path)
	}
	if err := r.Mount(m.Path); err != nil {
		return err
	}
	r.logMount(m.Path)
	return r.finishLocal(m)
}

// finishLocal runs on every pass over a mounted path: the brick directory and
// the nfs permissions are repaired even when an earlier run stopped after mount
func (r *Reconciler) finishLocal(m LocalMount) error {
	if m.BrickDir != "" {
		if err := os.MkdirAll(m.BrickDir, 0755); err != nil {
			return errors.Wrapf(err, "create brick directory %s", m.BrickDir)
		}
	}
	if m.ServerType == remotefs.ServerTypeNFS {
		return SetSticky(m.Path)
	}
	return nil
}

// Mount mounts path through its fstab entry
func (r *Reconciler) Mount(path string) error {
	out, err := r.Executor.ExecuteCommandWithCombinedOutput("mount", path)
	if err != nil {
		return errors.Wrapf(err, "mount %s: %s", path, out)
	}
	return nil
}

// MountClient mounts the clustered volume exposed by source at path, retrying
// until the volume accepts clients
func (r *Reconciler) MountClient(ctx context.Context, source, path string) error {
	mounted, err := r.Checker.IsMountPoint(path)
	if err != nil {
		return errors.Wrapf(err, "check mountpoint %s", path)
	}
	if !mounted {
		if err := os.MkdirAll(path, 0755); err != nil {
			return errors.Wrapf(err, "create mount directory %s", path)
		}
		if _, err := AppendEntry(r.FstabPath, source, ClientFstabEntry(source, path)); err != nil {
			return err
		}

		attempt := 0
		err := poll.Until(ctx, r.Clock, ClientMountInterval, ClientMountTimeout, func() (bool, error) {
			attempt++
			if err := r.Mount(path); err != nil {
				log.Debugf("mount attempt %d of %s failed: %v", attempt, path, err)
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return errors.Wrapf(err, "mount %s at %s", source, path)
		}
		log.Infof("mounted %s at %s after %d attempts", source, path, attempt)
		r.logMount(path)
	}
	return SetSticky(path)
}

func (r *Reconciler) logMount(path string) {
	if r.Lister == nil {
		return
	}
	mps, err := r.Lister.List()
	if err != nil {
		log.Warnf("list mounts failed %s", err.Error())
		return
	}
	for _, mp := range mps {
		if mp.Path == path {
			log.Infof("mount point %s is mounted from %s type %s options %v", path, mp.Device, mp.Type, mp.Opts)
			return
		}
	}
}

// SetSticky makes path world writable with the sticky bit, mode 1777
func SetSticky(path string) error {
	if err := os.Chmod(path, 0777|os.ModeSticky); err != nil {
		return errors.Wrapf(err, "chmod 1777 %s", path)
	}
	return nil
}
