package types

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// DiskType is a disk type
	DiskType = "disk"
	// PartType is a partition type
	PartType = "part"

	// FirstPartitionNumber is the only partition created on a data disk
	FirstPartitionNumber = 1
)

// BlockDevice is an attached data disk
type BlockDevice struct {
	// Path is the device node, e.g. /dev/sdc
	Path string `json:"path"`
	// Size is the device capacity in byte
	Size uint64 `json:"size"`
	// Type is disk type reported by lsblk
	Type string `json:"type"`
	// ReadOnly is the boolean whether the device is readonly
	Readonly bool `json:"readOnly"`
	// Partitioned is true once partition 1 exists
	Partitioned bool `json:"partitioned"`
}

// FirstPartition returns the node of partition 1, /dev/sdc -> /dev/sdc1 and
// /dev/nvme0n1 -> /dev/nvme0n1p1.
func (d *BlockDevice) FirstPartition() string {
	return PartitionPath(d.Path, FirstPartitionNumber)
}

func (d *BlockDevice) String() string {
	return fmt.Sprintf("%s(partitioned=%t)", d.Path, d.Partitioned)
}

// PartitionPath kernel names partitions of devices ending in a digit with a "p" separator
func PartitionPath(device string, number uint) string {
	if device == "" {
		return ""
	}
	last := rune(device[len(device)-1])
	if unicode.IsDigit(last) {
		return fmt.Sprintf("%sp%d", device, number)
	}
	return fmt.Sprintf("%s%d", device, number)
}

// Paths returns the device paths in order
func Paths(disks []*BlockDevice) []string {
	paths := make([]string, 0, len(disks))
	for _, d := range disks {
		paths = append(paths, d.Path)
	}
	return paths
}

// FirstPartitions returns partition 1 of every disk in order
func FirstPartitions(disks []*BlockDevice) []string {
	parts := make([]string, 0, len(disks))
	for _, d := range disks {
		parts = append(parts, d.FirstPartition())
	}
	return parts
}

// IsExtFilesystem matches the ext2/ext3/ext4 family
func IsExtFilesystem(fsType string) bool {
	return strings.HasPrefix(fsType, "ext")
}
