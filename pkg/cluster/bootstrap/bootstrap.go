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

// Package bootstrap joins nodes into one gluster volume. Nodes coordinate only
// through glusterd state: the first peer probes the others, creates and starts
// the volume, every node waits for the volume and mounts it through itself.
package bootstrap

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils/log"
	"github.com/carina-io/remotefs/utils/poll"
)

const (
	ProbeInterval      = time.Second
	ProbeTimeout       = 15 * time.Minute
	ConvergeInterval   = time.Second
	VisibilityInterval = 2 * time.Second
	VisibilityTimeout  = 15 * time.Minute
	SettleDelay        = 5 * time.Second
)

// Cluster the glusterd primitives the protocol is built on
type Cluster interface {
	Ping(address string) bool
	PeerProbe(address string) error
	ConnectedPeerCount() (int, error)
	VolumeExists(volume string) bool
	VolumeStarted(volume string) (bool, error)
	VolumeCreate(volume string, args []string, transport string, bricks []string) error
	VolumeSet(volume, key, value string) error
	VolumeStart(volume string) error
}

// ClientMounter mounts the volume as a client once it is visible
type ClientMounter interface {
	MountClient(ctx context.Context, source, path string) error
}

// IsLeader the first configured peer bootstraps the cluster. All nodes must
// be given the same peer order.
func IsLeader(self string, peers []string) bool {
	return len(peers) > 0 && peers[0] == self
}

type Bootstrapper struct {
	Cluster   Cluster
	Mounter   ClientMounter
	Clock     clock.Clock
	Self      string
	Nodes     []*types.ClusterNode
	Volume    *types.Volume
	MountPath string
}

// New validates the peer list and volume options and prepares the protocol state
func New(cluster Cluster, mounter ClientMounter, self string, peers []string, volumeOptions, mountPath string) (*Bootstrapper, error) {
	if len(peers) == 0 {
		return nil, errors.Wrap(types.ErrConfiguration, "glusterfs requires a peer list")
	}
	var nodes []*types.ClusterNode
	found := false
	seen := map[string]bool{}
	for i, p := range peers {
		if seen[p] {
			return nil, errors.Wrapf(types.ErrConfiguration, "peer %s listed twice", p)
		}
		seen[p] = true
		if p == self {
			found = true
		}
		nodes = append(nodes, &types.ClusterNode{Address: p, Ordinal: i, State: types.PeerUnprobed})
	}
	if !found {
		return nil, errors.Wrapf(types.ErrInvariant, "self address %s is not in peer list %v", self, peers)
	}

	spec, err := ParseVolumeSpec(volumeOptions, len(peers))
	if err != nil {
		return nil, err
	}
	return &Bootstrapper{
		Cluster:   cluster,
		Mounter:   mounter,
		Clock:     clock.RealClock{},
		Self:      self,
		Nodes:     nodes,
		Volume:    NewVolume(remotefs.GlusterVolumeName, spec, peers),
		MountPath: mountPath,
	}, nil
}

func (b *Bootstrapper) peers() []string {
	peers := make([]string, 0, len(b.Nodes))
	for _, n := range b.Nodes {
		peers = append(peers, n.Address)
	}
	return peers
}

// IsLeader whether this node bootstraps the cluster
func (b *Bootstrapper) IsLeader() bool {
	return IsLeader(b.Self, b.peers())
}

// Run executes the protocol. Timeouts and command failures are fatal, there
// is no rollback; a re-run resumes from glusterd state.
func (b *Bootstrapper) Run(ctx context.Context) error {
	if b.IsLeader() {
		log.Infof("%s is the bootstrap leader of %v", b.Self, b.peers())
		if err := b.probePeers(ctx); err != nil {
			return err
		}
		if err := b.waitConverged(ctx); err != nil {
			return err
		}
		if err := b.createVolume(); err != nil {
			return err
		}
	} else {
		log.Infof("%s waits for leader %s", b.Self, b.Nodes[0].Address)
	}

	if err := b.waitVolume(ctx); err != nil {
		return err
	}
	source := b.Self + ":/" + b.Volume.Name
	return errors.Wrap(b.Mounter.MountClient(ctx, source, b.MountPath), "mount gluster volume")
}

func (b *Bootstrapper) probePeers(ctx context.Context) error {
	for _, n := range b.Nodes {
		if n.Address == b.Self {
			n.State = types.PeerPeered
			continue
		}
		n.State = types.PeerProbing
		log.Infof("attempting to peer with %s", n.Address)
		err := poll.Until(ctx, b.Clock, ProbeInterval, ProbeTimeout, func() (bool, error) {
			if !b.Cluster.Ping(n.Address) {
				return false, nil
			}
			if err := b.Cluster.PeerProbe(n.Address); err != nil {
				log.Debugf("%v", err)
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return errors.Wrapf(err, "peer %s", n.Address)
		}
		n.State = types.PeerPeered
		log.Infof("%s peered", n.Address)
	}
	return nil
}

func (b *Bootstrapper) waitConverged(ctx context.Context) error {
	want := len(b.Nodes) - 1
	err := poll.Until(ctx, b.Clock, ConvergeInterval, poll.Unbounded, func() (bool, error) {
		n, err := b.Cluster.ConnectedPeerCount()
		if err != nil {
			log.Debugf("%v", err)
			return false, nil
		}
		log.Debugf("%d of %d peers connected", n, want)
		return n == want, nil
	})
	if err != nil {
		return errors.Wrap(err, "wait for peers to connect")
	}
	log.Infof("all %d peers connected", want)
	return poll.Settle(ctx, b.Clock, SettleDelay)
}

func (b *Bootstrapper) createVolume() error {
	v := b.Volume
	if b.Cluster.VolumeExists(v.Name) {
		v.State = types.VolumeCreated
		started, err := b.Cluster.VolumeStarted(v.Name)
		if err != nil {
			return err
		}
		if started {
			v.State = types.VolumeStarted
			log.Infof("volume %s exists and is started", v.Name)
			return nil
		}
		log.Infof("volume %s exists but is stopped, configuring and starting it", v.Name)
		return b.configureAndStart()
	}

	log.Infof("creating volume %s", v)
	if err := b.Cluster.VolumeCreate(v.Name, v.CreateArgs, v.Transport, v.Bricks); err != nil {
		return err
	}
	v.State = types.VolumeCreated
	return b.configureAndStart()
}

// options are applied in the given order, volume set is idempotent
func (b *Bootstrapper) configureAndStart() error {
	for _, o := range b.Volume.Options {
		if err := b.Cluster.VolumeSet(b.Volume.Name, o.Key, o.Value); err != nil {
			return err
		}
	}
	if err := b.Cluster.VolumeStart(b.Volume.Name); err != nil {
		return err
	}
	b.Volume.State = types.VolumeStarted
	return nil
}

func (b *Bootstrapper) waitVolume(ctx context.Context) error {
	name := b.Volume.Name
	err := poll.Until(ctx, b.Clock, VisibilityInterval, VisibilityTimeout, func() (bool, error) {
		return b.Cluster.VolumeExists(name), nil
	})
	if err != nil {
		return errors.Wrapf(err, "wait for volume %s", name)
	}
	log.Infof("volume %s is visible", name)
	return poll.Settle(ctx, b.Clock, SettleDelay)
}
