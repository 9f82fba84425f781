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

package inventory

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils"
	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

// DeviceClassFilter block device major numbers considered as data disks:
// 8,65-68 scsi disks (sd*), 259 nvme namespaces
const DeviceClassFilter = "8,65,66,67,68,259"

type Inventory interface {
	ListDataDisks() ([]*types.BlockDevice, error)
}

type DiskInventory struct {
	Executor exec.Executor
	// Excluded boot and ephemeral devices
	Excluded []string
}

func NewDiskInventory(executor exec.Executor) *DiskInventory {
	return &DiskInventory{
		Executor: executor,
		Excluded: remotefs.ExcludedDevices,
	}
}

// ListDataDisks lists whole disks of the device class filter, boot and
// ephemeral devices removed, sorted by path
func (di *DiskInventory) ListDataDisks() ([]*types.BlockDevice, error) {
	args := []string{"--pairs", "--paths", "--bytes", "--nodeps", "--include", DeviceClassFilter, "--output", "NAME,SIZE,TYPE,RO"}
	devices, err := di.Executor.ExecuteCommandWithOutput("lsblk", args...)
	if err != nil {
		log.Error("exec lsblk failed " + err.Error())
		return nil, errors.Wrap(err, "list block devices")
	}

	disks := di.filter(parseDiskString(devices))
	log.Infof("found %d data disks: %s", len(disks), strings.Join(types.Paths(disks), " "))
	return disks, nil
}

func parseDiskString(diskString string) []*types.BlockDevice {
	resp := []*types.BlockDevice{}

	diskString = strings.TrimSpace(diskString)
	if diskString == "" {
		return resp
	}

	diskString = strings.ReplaceAll(diskString, "\"", "")

	for _, line := range strings.Split(diskString, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		tmp := types.BlockDevice{}
		for _, v := range strings.Fields(line) {
			k := strings.SplitN(v, "=", 2)
			if len(k) != 2 {
				continue
			}

			switch k[0] {
			case "NAME":
				tmp.Path = k[1]
			case "SIZE":
				tmp.Size, _ = strconv.ParseUint(k[1], 10, 64)
			case "TYPE":
				tmp.Type = k[1]
			case "RO":
				tmp.Readonly = k[1] == "1"
			default:
				log.Warnf("undefined field %s-%s", k[0], k[1])
			}
		}
		resp = append(resp, &tmp)
	}
	return resp
}

func (di *DiskInventory) filter(disklist []*types.BlockDevice) []*types.BlockDevice {
	diskList := []*types.BlockDevice{}
	for _, d := range disklist {
		if d.Type != types.DiskType || d.Path == "" {
			continue
		}
		if utils.ContainsString(di.Excluded, d.Path) {
			log.Debugf("skip os or resource disk %s", d.Path)
			continue
		}
		if d.Readonly {
			log.Infof("skip readonly disk %s", d.Path)
			continue
		}
		log.Debugf("data disk %s size %s", d.Path, humanize.IBytes(d.Size))
		diskList = append(diskList, d)
	}
	sort.Slice(diskList, func(i, j int) bool {
		return diskList[i].Path < diskList[j].Path
	})
	return diskList
}
