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

package filesystem

import (
	"fmt"

	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

const (
	cmdMkfsBtrfs = "mkfs.btrfs"
	cmdBtrfs     = "btrfs"
)

type btrfs struct {
	device   string
	executor exec.Executor
}

func init() {
	fsTypeMap["btrfs"] = func(device string, executor exec.Executor) Filesystem {
		return btrfs{device: device, executor: executor}
	}
}

func (fs btrfs) Type() string {
	return "btrfs"
}

func (fs btrfs) Device() string {
	return fs.device
}

func (fs btrfs) Mkfs() error {
	fsType, err := NewProbe(fs.executor).DetectFilesystem(fs.device)
	if err != nil {
		return err
	}
	if fsType != "" {
		return ErrFilesystemExists
	}

	out, err := fs.executor.ExecuteCommandWithCombinedOutput(cmdMkfsBtrfs, "-f", fs.device)
	if err != nil {
		log.Error(err, " btrfs: failed to create",
			" device ", fs.device,
			" output ", out)
		return fmt.Errorf("failed to create btrfs filesystem: device=%s, err=%v, output=%s", fs.device, err, out)
	}
	log.Info("btrfs: created device ", fs.device)
	return nil
}

// Resize btrfs grows online only, through its mountpoint
func (fs btrfs) Resize(mountpath string) error {
	out, err := fs.executor.ExecuteCommandWithCombinedOutput(cmdBtrfs, "filesystem", "resize", "max", mountpath)
	if err != nil {
		log.Error(err, " failed to resize btrfs filesystem",
			" mountpath ", mountpath,
			" output ", out)
		return fmt.Errorf("failed to resize btrfs filesystem: mountpath=%s, err=%v, output=%s", mountpath, err, out)
	}
	return nil
}
