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

package bootstrap

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
)

// VolumeSpec parsed form of "voltype,transport,key:value,key:value,..."
type VolumeSpec struct {
	Type       types.VolumeType
	CreateArgs []string
	Transport  string
	Options    []types.VolumeOption
}

// ParseVolumeSpec parses the volume options for a cluster of nodes members.
// replica and stripe take the node count as factor, distributed takes no
// argument, anything else is passed to volume create verbatim.
func ParseVolumeSpec(spec string, nodes int) (VolumeSpec, error) {
	if nodes < 1 {
		return VolumeSpec{}, errors.Wrapf(types.ErrConfiguration, "volume needs at least one node, got %d", nodes)
	}
	fields := strings.Split(spec, ",")
	vs := VolumeSpec{Transport: remotefs.GlusterDefaultTransport}

	voltype := strings.ToLower(strings.TrimSpace(fields[0]))
	switch voltype {
	case "", string(types.VolumeDistributed):
		vs.Type = types.VolumeDistributed
	case "replica":
		vs.Type = types.VolumeReplicated
		vs.CreateArgs = []string{"replica", strconv.Itoa(nodes)}
	case "stripe":
		vs.Type = types.VolumeStriped
		vs.CreateArgs = []string{"stripe", strconv.Itoa(nodes)}
	default:
		vs.Type = types.VolumeCustom
		vs.CreateArgs = strings.Fields(voltype)
	}

	if len(fields) > 1 {
		if t := strings.TrimSpace(fields[1]); t != "" {
			vs.Transport = t
		}
	}

	var opts []string
	if len(fields) > 2 {
		opts = fields[2:]
	}
	for _, opt := range opts {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		kv := strings.SplitN(opt, ":", 2)
		if len(kv) != 2 || kv[0] == "" {
			return VolumeSpec{}, errors.Wrapf(types.ErrConfiguration, "volume option %q is not key:value", opt)
		}
		vs.Options = append(vs.Options, types.VolumeOption{Key: kv[0], Value: kv[1]})
	}
	return vs, nil
}

// Bricks one brick per peer at the well known location, in peer order
func Bricks(peers []string) []string {
	bricks := make([]string, 0, len(peers))
	for _, p := range peers {
		bricks = append(bricks, p+":"+remotefs.GlusterBrickLocation)
	}
	return bricks
}

// NewVolume the volume the leader creates from spec across peers
func NewVolume(name string, spec VolumeSpec, peers []string) *types.Volume {
	return &types.Volume{
		Name:       name,
		Type:       spec.Type,
		CreateArgs: spec.CreateArgs,
		Transport:  spec.Transport,
		Bricks:     Bricks(peers),
		Options:    spec.Options,
		State:      types.VolumeAbsent,
	}
}
