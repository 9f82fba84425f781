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

package raid

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/carina-io/remotefs/pkg/devicemanager/btrfs"
	"github.com/carina-io/remotefs/pkg/devicemanager/mdadm"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils/log"
)

// DeviceWaitTimeout bounds the wait for the md device node after create
const DeviceWaitTimeout = 30 * time.Second

// Probe filesystem superblock accessors
type Probe interface {
	DetectFilesystem(device string) (string, error)
	GetFilesystemUUID(device string) (string, error)
}

type Engine struct {
	Mdadm mdadm.Mdadm
	Btrfs btrfs.Btrfs
	Probe Probe
	// MountPath where a btrfs pool is mounted, devices are added through it
	MountPath string
	// Rebalance runs a full balance after a btrfs pool was grown
	Rebalance bool
	// WaitDevice blocks until the device node exists
	WaitDevice func(ctx context.Context, path string) error
}

func NewEngine(md mdadm.Mdadm, pool btrfs.Btrfs, probe Probe, mountPath string, rebalance bool) *Engine {
	return &Engine{
		Mdadm:     md,
		Btrfs:     pool,
		Probe:     probe,
		MountPath: mountPath,
		Rebalance: rebalance,
		WaitDevice: func(ctx context.Context, path string) error {
			return WaitForDevice(ctx, path, DeviceWaitTimeout)
		},
	}
}

// Observe collects the state Classify decides on. Membership probe failures
// count as "not a member".
func (e *Engine) Observe(level int, fsType string, disks []*types.BlockDevice) (Observation, error) {
	o := Observation{
		Level:      level,
		Filesystem: fsType,
		Partitions: types.FirstPartitions(disks),
		Members:    sets.NewString(),
	}

	if level < 0 {
		if len(o.Partitions) == 1 {
			fs, err := e.Probe.DetectFilesystem(o.Partitions[0])
			if err != nil {
				return o, errors.Wrapf(err, "detect filesystem on %s", o.Partitions[0])
			}
			o.HasFilesystem = fs != ""
		}
		return o, nil
	}
	if o.Pooled() && level != 0 {
		return o, nil
	}

	for _, p := range o.Partitions {
		var member bool
		if o.Pooled() {
			member = e.Btrfs.IsMember(p)
		} else {
			member = e.Mdadm.IsMember(p)
		}
		if member {
			o.Members.Insert(p)
		}
	}

	if !o.Pooled() {
		arrays, err := e.Mdadm.ExistingArrays()
		if err != nil {
			log.Warnf("scan existing arrays failed %s", err.Error())
		}
		o.ExistingArrays = arrays
	}
	return o, nil
}

// Reconcile classifies the disk set and assembles, grows or adopts the array.
// It does not format; the returned target says whether a format is still required.
func (e *Engine) Reconcile(ctx context.Context, level int, fsType string, disks []*types.BlockDevice) (*Result, error) {
	o, err := e.Observe(level, fsType, disks)
	if err != nil {
		return nil, err
	}
	d, err := Classify(o)
	if err != nil {
		return nil, err
	}
	log.Infof("raid decision: %s", d)

	switch d.Action {
	case RejectUnsupported:
		return &Result{Decision: d}, errors.Wrap(types.ErrConfiguration, d.Reason)
	case Create:
		if err := e.create(ctx, o, &d); err != nil {
			return &Result{Decision: d}, err
		}
	case Grow:
		if err := e.grow(o, &d); err != nil {
			return &Result{Decision: d}, err
		}
	}

	result := &Result{
		Decision: d,
		Target: &types.FilesystemTarget{
			Device:     d.Target,
			Filesystem: fsType,
			Formatted:  !d.NeedsFormat,
		},
	}
	if level >= 0 {
		result.Array = &types.RaidArray{
			Target:      d.Target,
			Level:       level,
			Filesystem:  fsType,
			Members:     o.Partitions,
			PreExisting: d.PreExisting,
		}
	}

	if !d.NeedsFormat {
		id, err := e.Probe.GetFilesystemUUID(d.Target)
		if err != nil {
			return result, errors.Wrapf(err, "read uuid of %s", d.Target)
		}
		if id == "" {
			return result, errors.Wrapf(types.ErrInvariant, "no filesystem uuid on existing target %s", d.Target)
		}
		result.Target.UUID = id
		if result.Array != nil {
			result.Array.UUID = id
		}
	}
	return result, nil
}

func (e *Engine) create(ctx context.Context, o Observation, d *Decision) error {
	if o.Pooled() {
		return e.Btrfs.CreatePool(d.Join)
	}

	// an array assembled since the observation, e.g. by a previous partial run
	arrays, err := e.Mdadm.DetailScan()
	if err != nil {
		log.Warnf("%s", err.Error())
	}
	if len(arrays) > 0 {
		if len(arrays) == 1 && arrays[0] == d.Target {
			log.Infof("existing array found: %s", d.Target)
			d.Action = Skip
			d.PreExisting = true
			d.NeedsFormat = false
			d.Join = nil
			d.Reason = "adopt concurrently assembled array"
			return nil
		}
		return errors.Wrapf(types.ErrInvariant, "expected no array or %s, found %v", d.Target, arrays)
	}

	if err := e.Mdadm.Create(d.Target, o.Level, d.Join); err != nil {
		return err
	}
	return e.WaitDevice(ctx, d.Target)
}

func (e *Engine) grow(o Observation, d *Decision) error {
	if o.Pooled() {
		if err := e.Btrfs.AddDevices(e.MountPath, d.Join); err != nil {
			return err
		}
		if err := e.Btrfs.ResizeMax(e.MountPath); err != nil {
			return err
		}
		if e.Rebalance {
			log.Infof("rebalancing btrfs pool at %s", e.MountPath)
			return e.Btrfs.Balance(e.MountPath)
		}
		return nil
	}

	if err := e.Mdadm.Add(d.Target, d.Join); err != nil {
		return err
	}
	return e.Mdadm.Grow(d.Target, d.Total)
}
