package types

import (
	"fmt"
	"strings"
)

// RaidArray md array or btrfs pool assembled from the data disk partitions.
// It is created at most once per target, afterwards members are only appended.
type RaidArray struct {
	// Target md device, or the first member partition for a btrfs pool
	Target string `json:"target"`
	// Level raid level, -1 when no array was requested
	Level int `json:"level"`
	// Filesystem btrfs pools devices itself, anything else sits on md
	Filesystem string `json:"filesystem"`
	// Members partitions of the array
	Members []string `json:"members"`
	// PreExisting is true when the array was found instead of created
	PreExisting bool `json:"preExisting"`
	// UUID of the filesystem on the array
	UUID string `json:"uuid"`
}

// FilesystemTarget the device the local filesystem lives on
type FilesystemTarget struct {
	Device     string `json:"device"`
	Filesystem string `json:"filesystem"`
	// UUID is read from the superblock, it is empty until the device is formatted
	UUID string `json:"uuid"`
	// Formatted false means a format is still required
	Formatted bool `json:"formatted"`
}

func (t *FilesystemTarget) String() string {
	return fmt.Sprintf("%s(fs=%s uuid=%s formatted=%t)", t.Device, t.Filesystem, t.UUID, t.Formatted)
}

// PeerState connectivity of a cluster node as seen by the leader
type PeerState string

const (
	PeerUnprobed PeerState = "unprobed"
	PeerProbing  PeerState = "probing"
	PeerPeered   PeerState = "peered"
)

// ClusterNode a member of the configured peer list
type ClusterNode struct {
	Address string    `json:"address"`
	Ordinal int       `json:"ordinal"`
	State   PeerState `json:"state"`
}

// VolumeType layout of the clustered volume
type VolumeType string

const (
	VolumeDistributed VolumeType = "distributed"
	VolumeReplicated  VolumeType = "replicated"
	VolumeStriped     VolumeType = "striped"
	VolumeCustom      VolumeType = "custom"
)

// VolumeState lifecycle of the clustered volume
type VolumeState string

const (
	VolumeAbsent  VolumeState = "absent"
	VolumeCreated VolumeState = "created"
	VolumeStarted VolumeState = "started"
)

// VolumeOption a key:value pair applied after creation
type VolumeOption struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Volume the clustered filesystem object composed of one brick per node
type Volume struct {
	Name string     `json:"name"`
	Type VolumeType `json:"type"`
	// CreateArgs the layout arguments passed to volume create, e.g. "replica 3"
	CreateArgs []string       `json:"createArgs"`
	Transport  string         `json:"transport"`
	Bricks     []string       `json:"bricks"`
	Options    []VolumeOption `json:"options"`
	State      VolumeState    `json:"state"`
}

func (v *Volume) String() string {
	return fmt.Sprintf("%s(type=%s args=%q transport=%s bricks=%s)",
		v.Name, v.Type, strings.Join(v.CreateArgs, " "), v.Transport, strings.Join(v.Bricks, ","))
}
