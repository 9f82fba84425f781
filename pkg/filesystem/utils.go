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
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

const (
	blkidCmd = "blkid"
)

type temporaryer interface {
	Temporary() bool
}

// Probe reads filesystem superblocks through blkid
type Probe struct {
	Executor exec.Executor
}

func NewProbe(executor exec.Executor) *Probe {
	return &Probe{Executor: executor}
}

// blkid returns the exported tags of device, empty when nothing was found
func (p *Probe) blkid(device string) (map[string]string, error) {
	syncDevice(device)

	out, err := p.Executor.ExecuteCommandWithCombinedOutput(blkidCmd, "-c", "/dev/null", "-o", "export", device)
	if err != nil {
		// blkid exits with status 2 when nothing can be found
		if code, ok := exec.ExitStatus(err); ok && code == 2 {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("blkid failed: output=%s, device=%s, error=%v", out, device, err)
	}
	log.Debug(out)

	tags := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		kv := strings.SplitN(strings.TrimSpace(line), "=", 2)
		if len(kv) != 2 {
			continue
		}
		tags[kv[0]] = kv[1]
	}
	return tags, nil
}

// DetectFilesystem returns filesystem type if device has a filesystem.
// This returns an empty string if no filesystem exists.
func (p *Probe) DetectFilesystem(device string) (string, error) {
	tags, err := p.blkid(device)
	if err != nil {
		return "", err
	}
	return tags["TYPE"], nil
}

// GetFilesystemUUID returns the filesystem uuid of device, empty when the
// device is not formatted
func (p *Probe) GetFilesystemUUID(device string) (string, error) {
	tags, err := p.blkid(device)
	if err != nil {
		return "", err
	}
	id := tags["UUID"]
	if id == "" {
		return "", nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", errors.Wrapf(types.ErrInvariant, "device %s reports malformed uuid %q", device, id)
	}
	return id, nil
}

// synchronizes dirty data before the superblock is read
func syncDevice(device string) {
	f, err := os.Open(device)
	if err != nil {
		log.Debugf("open %s for sync: %v", device, err)
		return
	}
	_ = f.Sync()
	_ = f.Close()
}

// IsBlockDevice reports whether path exists and is a block special file
func IsBlockDevice(path string) (bool, error) {
	var st unix.Stat_t
	if err := Stat(path, &st); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat failed for %s: %v", path, err)
	}
	return st.Mode&unix.S_IFMT == unix.S_IFBLK, nil
}

// Stat wrapped a golang.org/x/sys/unix.Stat function to handle EINTR signal for Go 1.14+
func Stat(path string, stat *unix.Stat_t) error {
	for {
		err := unix.Stat(path, stat)
		if err == nil {
			return nil
		}
		if e, ok := err.(temporaryer); ok && e.Temporary() {
			continue
		}
		return err
	}
}
