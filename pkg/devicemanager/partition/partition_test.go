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

package partition

import (
	"errors"
	"testing"

	"github.com/anuvu/disko"
	"github.com/anuvu/disko/partid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils/exec/exectest"
)

type fakeSystem struct {
	disks   map[string]disko.Disk
	creates int
}

func newFakeSystem(paths ...string) *fakeSystem {
	fs := &fakeSystem{disks: map[string]disko.Disk{}}
	for _, p := range paths {
		fs.disks[p] = disko.Disk{
			Name:       p[len("/dev/"):],
			Path:       p,
			Size:       10 << 30,
			SectorSize: 512,
			Partitions: disko.PartitionSet{},
		}
	}
	return fs
}

func (f *fakeSystem) ScanDisk(path string) (disko.Disk, error) {
	d, ok := f.disks[path]
	if !ok {
		return disko.Disk{}, errors.New("no such disk " + path)
	}
	parts := disko.PartitionSet{}
	for n, p := range d.Partitions {
		parts[n] = p
	}
	d.Partitions = parts
	return d, nil
}

func (f *fakeSystem) CreatePartition(disk disko.Disk, part disko.Partition) error {
	d := f.disks[disk.Path]
	if _, exists := d.Partitions[part.Number]; exists {
		return errors.New("partition exists")
	}
	d.Partitions[part.Number] = part
	f.disks[disk.Path] = d
	f.creates++
	return nil
}

func blockDevices(paths ...string) []*types.BlockDevice {
	var disks []*types.BlockDevice
	for _, p := range paths {
		disks = append(disks, &types.BlockDevice{Path: p, Type: types.DiskType})
	}
	return disks
}

func TestEnsurePartitioned(t *testing.T) {
	sys := newFakeSystem("/dev/sdc", "/dev/sdd")
	executor := exectest.New()
	lp := &LocalPartitionImplement{System: sys, Executor: executor}

	disks := blockDevices("/dev/sdc", "/dev/sdd")
	created, err := lp.EnsurePartitioned(disks)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, executor.Count("udevadm settle"))

	for _, d := range disks {
		assert.True(t, d.Partitioned)
		part, ok := sys.disks[d.Path].Partitions[types.FirstPartitionNumber]
		require.True(t, ok)
		assert.Equal(t, disko.PartType(partid.LinuxFS), part.Type)
		assert.Equal(t, DataPartitionName, part.Name)
		assert.True(t, part.Last > part.Start)
	}
}

func TestEnsurePartitionedIdempotent(t *testing.T) {
	sys := newFakeSystem("/dev/sdc", "/dev/sdd")
	executor := exectest.New()
	lp := &LocalPartitionImplement{System: sys, Executor: executor}

	_, err := lp.EnsurePartitioned(blockDevices("/dev/sdc", "/dev/sdd"))
	require.NoError(t, err)
	first := map[string]disko.PartitionSet{}
	for p := range sys.disks {
		d, err := sys.ScanDisk(p)
		require.NoError(t, err)
		first[p] = d.Partitions
	}

	disks := blockDevices("/dev/sdc", "/dev/sdd")
	created, err := lp.EnsurePartitioned(disks)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, sys.creates)
	assert.Equal(t, 1, executor.Count("udevadm settle"))
	for p, d := range sys.disks {
		assert.Equal(t, first[p], d.Partitions)
	}
	for _, d := range disks {
		assert.True(t, d.Partitioned)
	}
}

func TestEnsurePartitionedScanFailure(t *testing.T) {
	lp := &LocalPartitionImplement{System: newFakeSystem(), Executor: exectest.New()}
	_, err := lp.EnsurePartitioned(blockDevices("/dev/sdx"))
	assert.Error(t, err)
}
