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
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/carina-io/remotefs/pkg/devicemanager/types"
)

// Action provisioning step chosen for the disk set
type Action int

const (
	// Skip nothing to assemble, the target already exists
	Skip Action = iota
	// Create assemble a fresh array or pool from every partition
	Create
	// Grow add the new partitions to the existing array or pool
	Grow
	// Format single disk without a filesystem
	Format
	// RejectUnsupported the requested change cannot be done safely
	RejectUnsupported
)

var actionNames = map[Action]string{
	Skip:              "skip",
	Create:            "create",
	Grow:              "grow",
	Format:            "format",
	RejectUnsupported: "reject-unsupported",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Observation the disk and array state the classification is computed from
type Observation struct {
	// Level requested raid level, negative when unset
	Level      int
	Filesystem string
	// Partitions first partitions of the data disks in disk order
	Partitions []string
	// Members partitions already part of an array or pool
	Members sets.String
	// ExistingArrays md arrays present on the node
	ExistingArrays []string
	// HasFilesystem a filesystem was found on the single data partition
	HasFilesystem bool
}

// Pooled btrfs assembles devices itself instead of sitting on md
func (o Observation) Pooled() bool {
	return o.Filesystem == "btrfs"
}

// NeedsJoin partitions not yet part of the array, in disk order
func (o Observation) NeedsJoin() []string {
	var join []string
	for _, p := range o.Partitions {
		if !o.Members.Has(p) {
			join = append(join, p)
		}
	}
	return join
}

// Decision result of Classify
type Decision struct {
	Action Action
	// Target md device, first pool member or the single data partition
	Target string
	// Join partitions to add or to create the array from
	Join  []string
	Total int
	// PreExisting the target was found instead of created
	PreExisting bool
	// NeedsFormat mkfs must run on Target
	NeedsFormat bool
	// NeedsResize the filesystem must be grown once mounted
	NeedsResize bool
	Reason      string
}

func (d Decision) String() string {
	return fmt.Sprintf("%s target=%s join=[%s] total=%d preExisting=%t format=%t resize=%t reason=%q",
		d.Action, d.Target, strings.Join(d.Join, " "), d.Total, d.PreExisting, d.NeedsFormat, d.NeedsResize, d.Reason)
}

// Result what Reconcile assembled
type Result struct {
	Decision Decision
	// Array is nil when no raid level was requested
	Array  *types.RaidArray
	Target *types.FilesystemTarget
}
