package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carina-io/remotefs/utils/exec/exectest"
)

const lsblkOutput = `NAME="/dev/sda" SIZE="32212254720" TYPE="disk" RO="0"
NAME="/dev/sdb" SIZE="8589934592" TYPE="disk" RO="0"
NAME="/dev/sdd" SIZE="1099511627776" TYPE="disk" RO="0"
NAME="/dev/sdc" SIZE="1099511627776" TYPE="disk" RO="0"
NAME="/dev/sr0" SIZE="1073741824" TYPE="rom" RO="1"
NAME="/dev/sde" SIZE="1099511627776" TYPE="disk" RO="1"
`

func TestListDataDisks(t *testing.T) {
	executor := exectest.New().On("lsblk", exectest.Result{Output: lsblkOutput})
	di := NewDiskInventory(executor)

	disks, err := di.ListDataDisks()
	require.NoError(t, err)
	require.Len(t, disks, 2)

	a := assert.New(t)
	a.Equal("/dev/sdc", disks[0].Path)
	a.Equal("/dev/sdd", disks[1].Path)
	a.Equal(uint64(1099511627776), disks[0].Size)
	a.False(disks[0].Partitioned)
	a.Equal([]string{"lsblk --pairs --paths --bytes --nodeps --include 8,65,66,67,68,259 --output NAME,SIZE,TYPE,RO"}, executor.Commands)
}

func TestListDataDisksEmpty(t *testing.T) {
	di := NewDiskInventory(exectest.New())
	disks, err := di.ListDataDisks()
	require.NoError(t, err)
	assert.Empty(t, disks)
}

func TestListDataDisksFailure(t *testing.T) {
	di := NewDiskInventory(exectest.New().On("lsblk", exectest.Failure("lsblk: not found")))
	_, err := di.ListDataDisks()
	assert.Error(t, err)
}
