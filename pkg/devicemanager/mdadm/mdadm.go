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

package mdadm

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

const cmdMdadm = "mdadm"

// Mdadm block level software raid primitive
type Mdadm interface {
	ExistingArrays() ([]string, error)
	DetailScan() ([]string, error)
	IsMember(partition string) bool
	Create(target string, level int, members []string) error
	Add(target string, members []string) error
	Grow(target string, total int) error
}

type Manager struct {
	Executor exec.Executor
	// ProcPath procfs mount point, /proc unless overridden
	ProcPath string
}

func NewManager(executor exec.Executor) *Manager {
	return &Manager{Executor: executor, ProcPath: procfs.DefaultMountPoint}
}

// mdstat lists arrays known to the kernel, nil when the md driver is not loaded
func (m *Manager) mdstat() ([]string, error) {
	fs, err := procfs.NewFS(m.ProcPath)
	if err != nil {
		return nil, err
	}
	stats, err := fs.MDStat()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var arrays []string
	for _, s := range stats {
		log.Debugf("mdstat %s state %s disks %d/%d", s.Name, s.ActivityState, s.DisksActive, s.DisksTotal)
		arrays = append(arrays, "/dev/"+s.Name)
	}
	return arrays, nil
}

// DetailScan returns the array devices reported by mdadm --detail --scan
func (m *Manager) DetailScan() ([]string, error) {
	out, err := m.Executor.ExecuteCommandWithOutput(cmdMdadm, "--detail", "--scan")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mdadm --detail --scan")
	}
	return parseDetailScan(out), nil
}

func parseDetailScan(out string) []string {
	var arrays []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "ARRAY" {
			continue
		}
		arrays = append(arrays, fields[1])
	}
	return arrays
}

// ExistingArrays arrays present on this node. /proc/mdstat is authoritative,
// mdadm --detail --scan is consulted when it cannot be read.
func (m *Manager) ExistingArrays() ([]string, error) {
	kernel, err := m.mdstat()
	if err != nil {
		log.Warnf("read mdstat failed %s", err.Error())
	}
	scanned, scanErr := m.DetailScan()
	if scanErr != nil {
		log.Warnf("%s", scanErr.Error())
	}

	if err != nil {
		if scanErr != nil {
			return nil, scanErr
		}
		return sortedUnique(scanned), nil
	}
	if scanErr == nil && len(scanned) != len(kernel) {
		log.Warnf("mdstat reports arrays %v, mdadm reports %v", kernel, scanned)
	}
	return sortedUnique(kernel), nil
}

func sortedUnique(arrays []string) []string {
	if len(arrays) == 0 {
		return nil
	}
	return sets.NewString(arrays...).List()
}

// IsMember reports whether partition carries an md superblock. Examine
// failures are treated as not being a member yet.
func (m *Manager) IsMember(partition string) bool {
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdMdadm, "--examine", partition)
	if err != nil {
		log.Debugf("%s is not an array member: %s", partition, out)
		return false
	}
	return true
}

func (m *Manager) Create(target string, level int, members []string) error {
	args := []string{"--create", "--verbose", target,
		"--level=" + strconv.Itoa(level),
		"--raid-devices=" + strconv.Itoa(len(members))}
	args = append(args, members...)
	args = append(args, "--run")
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdMdadm, args...)
	if err != nil {
		log.Errorf("mdadm create %s failed %s", target, out)
		return fmt.Errorf("failed to create array %s: err=%v, output=%s", target, err, out)
	}
	log.Infof("created array %s level %d from %s", target, level, strings.Join(members, " "))
	return nil
}

func (m *Manager) Add(target string, members []string) error {
	args := append([]string{"--add", target}, members...)
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdMdadm, args...)
	if err != nil {
		log.Errorf("mdadm add to %s failed %s", target, out)
		return fmt.Errorf("failed to add %s to array %s: err=%v, output=%s", strings.Join(members, " "), target, err, out)
	}
	return nil
}

func (m *Manager) Grow(target string, total int) error {
	out, err := m.Executor.ExecuteCommandWithCombinedOutput(cmdMdadm, "--grow", "--raid-devices="+strconv.Itoa(total), target)
	if err != nil {
		log.Errorf("mdadm grow %s failed %s", target, out)
		return fmt.Errorf("failed to grow array %s to %d devices: err=%v, output=%s", target, total, err, out)
	}
	return nil
}

