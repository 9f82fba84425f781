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

package btrfs

import (
	"fmt"
	"strings"

	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

const (
	cmdBtrfs     = "btrfs"
	cmdMkfsBtrfs = "mkfs.btrfs"
)

// Btrfs multi-device pool primitive
type Btrfs interface {
	IsMember(partition string) bool
	CreatePool(members []string) error
	AddDevices(mountpath string, devices []string) error
	ResizeMax(mountpath string) error
	Balance(mountpath string) error
}

type Manager struct {
	Executor exec.Executor
}

func NewManager(executor exec.Executor) *Manager {
	return &Manager{Executor: executor}
}

// IsMember registers partition with the kernel, failure means it holds no pool
func (m *Manager) IsMember(partition string) bool {
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdBtrfs, "device", "scan", partition)
	if err != nil {
		log.Debugf("%s is not a btrfs pool member: %s", partition, out)
		return false
	}
	return true
}

// CreatePool formats members as one raid0 pool for data and metadata
func (m *Manager) CreatePool(members []string) error {
	args := append([]string{"-f", "-d", "raid0", "-m", "raid0"}, members...)
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdMkfsBtrfs, args...)
	if err != nil {
		log.Errorf("create btrfs pool failed %s", out)
		return fmt.Errorf("failed to create btrfs pool on %s: err=%v, output=%s", strings.Join(members, " "), err, out)
	}
	log.Infof("created btrfs pool on %s", strings.Join(members, " "))
	return nil
}

// AddDevices extends the pool mounted at mountpath
func (m *Manager) AddDevices(mountpath string, devices []string) error {
	args := append([]string{"device", "add", "-f"}, devices...)
	args = append(args, mountpath)
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdBtrfs, args...)
	if err != nil {
		log.Errorf("btrfs device add failed %s", out)
		return fmt.Errorf("failed to add %s to btrfs pool at %s: err=%v, output=%s", strings.Join(devices, " "), mountpath, err, out)
	}
	return nil
}

func (m *Manager) ResizeMax(mountpath string) error {
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdBtrfs, "filesystem", "resize", "max", mountpath)
	if err != nil {
		return fmt.Errorf("failed to resize btrfs pool at %s: err=%v, output=%s", mountpath, err, out)
	}
	return nil
}

// Balance rewrites data and metadata across all pool devices, it blocks until done
func (m *Manager) Balance(mountpath string) error {
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdBtrfs, "balance", "start", "--full-balance", mountpath)
	if err != nil {
		return fmt.Errorf("failed to balance btrfs pool at %s: err=%v, output=%s", mountpath, err, out)
	}
	return nil
}
