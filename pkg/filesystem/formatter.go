package filesystem

import (
	"github.com/pkg/errors"

	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

// Formatter creates the local filesystem on the resolved target
type Formatter struct {
	Executor exec.Executor
	Probe    *Probe
}

func NewFormatter(executor exec.Executor) *Formatter {
	return &Formatter{Executor: executor, Probe: NewProbe(executor)}
}

// Format runs mkfs on target unless it is already formatted, then reads the
// uuid of the new superblock. A target known to hold data is never touched.
func (f *Formatter) Format(target *types.FilesystemTarget) error {
	fs, err := New(target.Filesystem, target.Device, f.Executor)
	if err != nil {
		return err
	}
	if target.Formatted {
		log.Infof("%s already formatted, skip mkfs", target.Device)
		return f.ResolveUUID(target)
	}

	if err := fs.Mkfs(); err != nil {
		return errors.Wrapf(err, "format %s as %s", target.Device, target.Filesystem)
	}
	target.Formatted = true
	target.UUID = ""
	return f.ResolveUUID(target)
}

// ResolveUUID fills the target uuid from the superblock when unknown
func (f *Formatter) ResolveUUID(target *types.FilesystemTarget) error {
	if target.UUID != "" {
		return nil
	}
	id, err := f.Probe.GetFilesystemUUID(target.Device)
	if err != nil {
		return errors.Wrapf(err, "read uuid of %s", target.Device)
	}
	if id == "" {
		return errors.Wrapf(types.ErrInvariant, "no filesystem uuid on %s", target.Device)
	}
	target.UUID = id
	log.Infof("filesystem uuid of %s is %s", target.Device, id)
	return nil
}

// Resize grows the filesystem of target after its device was extended
func (f *Formatter) Resize(target *types.FilesystemTarget, mountpath string) error {
	fs, err := New(target.Filesystem, target.Device, f.Executor)
	if err != nil {
		return err
	}
	return errors.Wrapf(fs.Resize(mountpath), "resize %s", target.Device)
}
