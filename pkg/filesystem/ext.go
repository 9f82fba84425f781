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
	cmdResize2fs = "resize2fs"
)

type ext struct {
	fsType   string
	device   string
	executor exec.Executor
}

func init() {
	for _, t := range []string{"ext2", "ext3", "ext4"} {
		fsType := t
		fsTypeMap[fsType] = func(device string, executor exec.Executor) Filesystem {
			return ext{fsType: fsType, device: device, executor: executor}
		}
	}
}

func (fs ext) Type() string {
	return fs.fsType
}

func (fs ext) Device() string {
	return fs.device
}

func (fs ext) Mkfs() error {
	fsType, err := NewProbe(fs.executor).DetectFilesystem(fs.device)
	if err != nil {
		return err
	}
	if fsType != "" {
		return ErrFilesystemExists
	}

	// no reserved blocks, the filesystem holds shared data only
	out, err := fs.executor.ExecuteCommandWithCombinedOutput("mkfs."+fs.fsType, "-F", "-q", "-m", "0", fs.device)
	if err != nil {
		log.Error(err, " ", fs.fsType, ": failed to create",
			" device ", fs.device,
			" output ", out)
		return fmt.Errorf("failed to create %s filesystem: device=%s, err=%v, output=%s",
			fs.fsType, fs.device, err, out)
	}
	log.Info(fs.fsType, ": created device ", fs.device)
	return nil
}

func (fs ext) Resize(_ string) error {
	out, err := fs.executor.ExecuteCommandWithCombinedOutput(cmdResize2fs, fs.device)
	if err != nil {
		log.Error(err, " failed to resize ext filesystem",
			" device ", fs.device,
			" output ", out)
		return fmt.Errorf("failed to resize ext filesystem: device=%s, err=%v, output=%s",
			fs.device, err, out)
	}
	return nil
}
