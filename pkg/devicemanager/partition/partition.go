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
	"github.com/anuvu/disko"
	"github.com/anuvu/disko/linux"
	"github.com/anuvu/disko/partid"
	"github.com/pkg/errors"

	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

// DataPartitionName gpt name of the partition created on data disks
const DataPartitionName = "remotefs-data"

// DiskSystem partition table read/write primitive, satisfied by disko.System
type DiskSystem interface {
	ScanDisk(path string) (disko.Disk, error)
	CreatePartition(disk disko.Disk, part disko.Partition) error
}

type LocalPartition interface {
	EnsurePartitioned(disks []*types.BlockDevice) (int, error)
	UdevSettle() error
}

type LocalPartitionImplement struct {
	System   DiskSystem
	Executor exec.Executor
}

func NewLocalPartitionImplement(executor exec.Executor) *LocalPartitionImplement {
	return &LocalPartitionImplement{
		System:   linux.System(),
		Executor: executor,
	}
}

// EnsurePartitioned creates partition 1 spanning the largest free region on
// every disk lacking it. Disks that already carry partition 1 are only marked.
// It returns the number of partitions created.
func (lp *LocalPartitionImplement) EnsurePartitioned(disks []*types.BlockDevice) (int, error) {
	created := 0
	for _, d := range disks {
		disk, err := lp.System.ScanDisk(d.Path)
		if err != nil {
			log.Errorf("scan disk %s failed %s", d.Path, err.Error())
			return created, errors.Wrapf(err, "scan disk %s", d.Path)
		}

		if _, exists := disk.Partitions[types.FirstPartitionNumber]; exists {
			log.Debugf("disk %s already has partition %d", d.Path, types.FirstPartitionNumber)
			d.Partitioned = true
			continue
		}

		part, err := wholeDiskPartition(disk)
		if err != nil {
			return created, err
		}
		log.Infof("create partition %d on %s start %d last %d", part.Number, d.Path, part.Start, part.Last)
		if err := lp.System.CreatePartition(disk, part); err != nil {
			log.Errorf("create partition on disk %s failed %s", d.Path, err.Error())
			return created, errors.Wrapf(err, "create partition on %s", d.Path)
		}
		d.Partitioned = true
		created++
	}

	if created > 0 {
		if err := lp.UdevSettle(); err != nil {
			return created, err
		}
	}
	return created, nil
}

func wholeDiskPartition(disk disko.Disk) (disko.Partition, error) {
	fs := disk.FreeSpaces()
	if len(fs) < 1 {
		return disko.Partition{}, errors.Wrapf(types.ErrInvariant, "disk %s has no free space for partition %d", disk.Path, types.FirstPartitionNumber)
	}
	largest := fs[0]
	for _, f := range fs[1:] {
		if f.Size() > largest.Size() {
			largest = f
		}
	}

	return disko.Partition{
		Start:  largest.Start,
		Last:   largest.Last,
		Type:   partid.LinuxFS,
		Name:   DataPartitionName,
		ID:     disko.GenGUID(),
		Number: types.FirstPartitionNumber,
	}, nil
}

func (lp *LocalPartitionImplement) UdevSettle() error {
	_, err := lp.Executor.ExecuteCommandWithOutput("udevadm", "settle")
	if err != nil {
		return errors.Wrap(err, "udevadm settle")
	}
	return nil
}
