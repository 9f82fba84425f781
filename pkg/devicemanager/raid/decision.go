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
	"github.com/pkg/errors"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
)

// Classify chooses the provisioning action for an observation. It has no side
// effects; configuration and invariant failures are returned as errors
// wrapping types.ErrConfiguration and types.ErrInvariant.
func Classify(o Observation) (Decision, error) {
	total := len(o.Partitions)

	if o.Level < 0 {
		if total != 1 {
			return Decision{}, errors.Wrapf(types.ErrConfiguration, "no raid level set, expected exactly one data disk, found %d", total)
		}
		d := Decision{Target: o.Partitions[0], Total: total}
		if o.HasFilesystem {
			d.Action = Skip
			d.PreExisting = true
			d.Reason = "filesystem exists on single disk"
		} else {
			d.Action = Format
			d.NeedsFormat = true
			d.Reason = "single disk without filesystem"
		}
		return d, nil
	}

	if o.Pooled() && o.Level != 0 {
		return Decision{
			Action: RejectUnsupported,
			Total:  total,
			Reason: "btrfs pools support raid level 0 only",
		}, nil
	}
	if total < 2 {
		return Decision{}, errors.Wrapf(types.ErrConfiguration, "raid level %d requires at least 2 data disks, found %d", o.Level, total)
	}

	join := o.NeedsJoin()
	switch {
	case len(join) == 0:
		return converged(o, total)
	case len(join) == total:
		return fresh(o, join, total)
	case len(join) < total:
		return scaleOut(o, join, total)
	}
	return Decision{}, errors.Wrapf(types.ErrConfiguration, "%d partitions need joining out of %d", len(join), total)
}

func converged(o Observation, total int) (Decision, error) {
	d := Decision{Action: Skip, Total: total, PreExisting: true, Reason: "all partitions are members"}
	if o.Pooled() {
		d.Target = o.Partitions[0]
		return d, nil
	}
	target, err := singleArray(o.ExistingArrays)
	if err != nil {
		return Decision{}, err
	}
	if target == "" {
		return Decision{}, errors.Wrap(types.ErrInvariant, "partitions carry md superblocks but no array is assembled")
	}
	d.Target = target
	return d, nil
}

func fresh(o Observation, join []string, total int) (Decision, error) {
	if o.Pooled() {
		// pool creation formats the devices
		return Decision{Action: Create, Target: join[0], Join: join, Total: total, Reason: "no partition is a pool member"}, nil
	}
	target, err := singleArray(o.ExistingArrays)
	if err != nil {
		return Decision{}, err
	}
	if target != "" {
		return Decision{Action: Skip, Target: target, Total: total, PreExisting: true, Reason: "adopt existing array"}, nil
	}
	return Decision{
		Action:      Create,
		Target:      remotefs.DefaultMdTarget,
		Join:        join,
		Total:       total,
		NeedsFormat: true,
		Reason:      "no partition is an array member",
	}, nil
}

func scaleOut(o Observation, join []string, total int) (Decision, error) {
	if o.Level != 0 {
		return Decision{
			Action: RejectUnsupported,
			Join:   join,
			Total:  total,
			Reason: "only raid level 0 can be grown",
		}, nil
	}
	d := Decision{Action: Grow, Join: join, Total: total, PreExisting: true, Reason: "new partitions join existing array"}
	if o.Pooled() {
		for _, p := range o.Partitions {
			if o.Members.Has(p) {
				d.Target = p
				break
			}
		}
		return d, nil
	}
	target, err := singleArray(o.ExistingArrays)
	if err != nil {
		return Decision{}, err
	}
	if target == "" {
		return Decision{}, errors.Wrap(types.ErrInvariant, "array members found but no array is assembled")
	}
	d.Target = target
	d.NeedsResize = true
	return d, nil
}

func singleArray(arrays []string) (string, error) {
	switch len(arrays) {
	case 0:
		return "", nil
	case 1:
		return arrays[0], nil
	}
	return "", errors.Wrapf(types.ErrInvariant, "ambiguous arrays %v", arrays)
}
