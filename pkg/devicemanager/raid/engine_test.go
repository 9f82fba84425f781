package raid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carina-io/remotefs/pkg/devicemanager/btrfs"
	"github.com/carina-io/remotefs/pkg/devicemanager/mdadm"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/pkg/filesystem"
	"github.com/carina-io/remotefs/utils/exec/exectest"
	"github.com/carina-io/remotefs/utils/poll"
)

const (
	testUUID   = "3f1c9e2a-8d4b-4c1e-9a7f-2b6d0e5c4a11"
	detailScan = "ARRAY /dev/md0 metadata=1.2 name=node0:0 UUID=6c2b5a0e:9c1e4f7b:2d7e1c3a:55b0f2aa"
)

func newTestEngine(t *testing.T, executor *exectest.Executor) (*Engine, *[]string) {
	var waited []string
	md := mdadm.NewManager(executor)
	// no mdstat, arrays come from mdadm --detail --scan
	md.ProcPath = filepath.Join(t.TempDir(), "missing")
	e := NewEngine(md, btrfs.NewManager(executor), filesystem.NewProbe(executor), "/data", false)
	e.WaitDevice = func(_ context.Context, path string) error {
		waited = append(waited, path)
		return nil
	}
	return e, &waited
}

func disks(paths ...string) []*types.BlockDevice {
	var out []*types.BlockDevice
	for _, p := range paths {
		out = append(out, &types.BlockDevice{Path: p, Type: types.DiskType, Partitioned: true})
	}
	return out
}

func blkidUUID() exectest.Result {
	return exectest.Result{Output: "UUID=" + testUUID + "\nTYPE=ext4"}
}

func TestReconcileCreate(t *testing.T) {
	executor := exectest.New().On("mdadm --examine", exectest.Failure("mdadm: No md superblock detected"))
	e, waited := newTestEngine(t, executor)

	res, err := e.Reconcile(context.Background(), 0, "ext4", disks("/dev/sdc", "/dev/sdd"))
	require.NoError(t, err)
	assert.Equal(t, Create, res.Decision.Action)
	assert.Equal(t, []string{"mdadm --create --verbose /dev/md0 --level=0 --raid-devices=2 /dev/sdc1 /dev/sdd1 --run"}, executor.Matching("mdadm --create"))
	assert.Equal(t, []string{"/dev/md0"}, *waited)
	assert.False(t, res.Target.Formatted)
	assert.Empty(t, res.Target.UUID)
	assert.Equal(t, "/dev/md0", res.Array.Target)
	assert.False(t, res.Array.PreExisting)
	assert.False(t, executor.Ran("blkid"))
}

func TestReconcileCreateOnce(t *testing.T) {
	// state after a successful create: members carry superblocks, md0 is assembled
	executor := exectest.New().
		On("mdadm --detail --scan", exectest.Result{Output: detailScan}).
		On("blkid", blkidUUID())
	e, _ := newTestEngine(t, executor)

	res, err := e.Reconcile(context.Background(), 0, "ext4", disks("/dev/sdc", "/dev/sdd"))
	require.NoError(t, err)
	assert.Equal(t, Skip, res.Decision.Action)
	assert.False(t, executor.Ran("mdadm --create"))
	assert.True(t, res.Target.Formatted)
	assert.True(t, res.Array.PreExisting)
	assert.Equal(t, testUUID, res.Target.UUID)
	assert.Equal(t, testUUID, res.Array.UUID)
}

func TestReconcileAdoptsConcurrentArray(t *testing.T) {
	executor := exectest.New().
		On("mdadm --examine", exectest.Failure("")).
		On("mdadm --detail --scan", exectest.Result{}, exectest.Result{Output: detailScan}).
		On("blkid", blkidUUID())
	e, waited := newTestEngine(t, executor)

	res, err := e.Reconcile(context.Background(), 0, "ext4", disks("/dev/sdc", "/dev/sdd"))
	require.NoError(t, err)
	assert.Equal(t, Skip, res.Decision.Action)
	assert.True(t, res.Decision.PreExisting)
	assert.False(t, executor.Ran("mdadm --create"))
	assert.Empty(t, *waited)
	assert.Equal(t, testUUID, res.Target.UUID)
}

func TestReconcileUnexpectedArray(t *testing.T) {
	executor := exectest.New().
		On("mdadm --examine", exectest.Failure("")).
		On("mdadm --detail --scan", exectest.Result{}, exectest.Result{Output: "ARRAY /dev/md127 metadata=1.2"})
	e, _ := newTestEngine(t, executor)

	_, err := e.Reconcile(context.Background(), 0, "ext4", disks("/dev/sdc", "/dev/sdd"))
	assert.True(t, errors.Is(err, types.ErrInvariant), "got %v", err)
	assert.False(t, executor.Ran("mdadm --create"))
}

func TestReconcileCreateFailure(t *testing.T) {
	executor := exectest.New().
		On("mdadm --examine", exectest.Failure("")).
		On("mdadm --create", exectest.Failure("mdadm: cannot open /dev/sdc1: Device or resource busy"))
	e, waited := newTestEngine(t, executor)

	_, err := e.Reconcile(context.Background(), 0, "ext4", disks("/dev/sdc", "/dev/sdd"))
	assert.Error(t, err)
	assert.Empty(t, *waited)
}

func TestReconcileGrow(t *testing.T) {
	executor := exectest.New().
		On("mdadm --examine /dev/sde1", exectest.Failure("")).
		On("mdadm --detail --scan", exectest.Result{Output: detailScan}).
		On("blkid", blkidUUID())
	e, _ := newTestEngine(t, executor)

	res, err := e.Reconcile(context.Background(), 0, "ext4", disks("/dev/sdc", "/dev/sdd", "/dev/sde"))
	require.NoError(t, err)
	assert.Equal(t, Grow, res.Decision.Action)
	assert.True(t, res.Decision.NeedsResize)
	assert.Equal(t, []string{"mdadm --add /dev/md0 /dev/sde1", "mdadm --grow --raid-devices=3 /dev/md0"},
		append(executor.Matching("mdadm --add"), executor.Matching("mdadm --grow")...))
	assert.Equal(t, testUUID, res.Target.UUID)
	assert.True(t, res.Target.Formatted)
}

func TestReconcileRejectsMirrorGrowth(t *testing.T) {
	executor := exectest.New().
		On("mdadm --examine /dev/sde1", exectest.Failure("")).
		On("mdadm --detail --scan", exectest.Result{Output: detailScan})
	e, _ := newTestEngine(t, executor)

	res, err := e.Reconcile(context.Background(), 1, "ext4", disks("/dev/sdc", "/dev/sdd", "/dev/sde"))
	assert.True(t, errors.Is(err, types.ErrConfiguration), "got %v", err)
	assert.Equal(t, RejectUnsupported, res.Decision.Action)
	assert.False(t, executor.Ran("mdadm --add"))
	assert.False(t, executor.Ran("mdadm --grow"))
}

func TestReconcileBtrfs(t *testing.T) {
	executor := exectest.New().
		On("btrfs device scan", exectest.Failure("")).
		On("blkid", exectest.Result{Output: "UUID=" + testUUID + "\nTYPE=btrfs"})
	e, waited := newTestEngine(t, executor)

	res, err := e.Reconcile(context.Background(), 0, "btrfs", disks("/dev/sdc", "/dev/sdd"))
	require.NoError(t, err)
	assert.Equal(t, Create, res.Decision.Action)
	assert.Equal(t, []string{"mkfs.btrfs -f -d raid0 -m raid0 /dev/sdc1 /dev/sdd1"}, executor.Matching("mkfs.btrfs"))
	assert.True(t, res.Target.Formatted)
	assert.Equal(t, "/dev/sdc1", res.Target.Device)
	assert.Equal(t, testUUID, res.Target.UUID)
	assert.Empty(t, *waited)
	assert.False(t, executor.Ran("mdadm"))
}

func TestReconcileBtrfsGrow(t *testing.T) {
	executor := exectest.New().
		On("btrfs device scan /dev/sde1", exectest.Failure("")).
		On("blkid", exectest.Result{Output: "UUID=" + testUUID + "\nTYPE=btrfs"})
	e, _ := newTestEngine(t, executor)
	e.Rebalance = true

	res, err := e.Reconcile(context.Background(), 0, "btrfs", disks("/dev/sdc", "/dev/sdd", "/dev/sde"))
	require.NoError(t, err)
	assert.Equal(t, Grow, res.Decision.Action)
	assert.False(t, res.Decision.NeedsResize)
	assert.Equal(t, []string{
		"btrfs device add -f /dev/sde1 /data",
		"btrfs filesystem resize max /data",
		"btrfs balance start --full-balance /data",
	}, append(append(executor.Matching("btrfs device add"), executor.Matching("btrfs filesystem")...), executor.Matching("btrfs balance")...))
}

func TestReconcileBtrfsMirror(t *testing.T) {
	executor := exectest.New()
	e, _ := newTestEngine(t, executor)

	_, err := e.Reconcile(context.Background(), 1, "btrfs", disks("/dev/sdc", "/dev/sdd"))
	assert.True(t, errors.Is(err, types.ErrConfiguration))
	assert.Empty(t, executor.Commands)
}

func TestReconcileSingleDisk(t *testing.T) {
	executor := exectest.New().On("blkid", exectest.Result{Err: &exectest.ExitError{Code: 2}})
	e, _ := newTestEngine(t, executor)

	res, err := e.Reconcile(context.Background(), -1, "ext4", disks("/dev/sdc"))
	require.NoError(t, err)
	assert.Equal(t, Format, res.Decision.Action)
	assert.Nil(t, res.Array)
	assert.Equal(t, "/dev/sdc1", res.Target.Device)
	assert.False(t, res.Target.Formatted)
	assert.Equal(t, []string{"blkid -c /dev/null -o export /dev/sdc1"}, executor.Commands)
}

func TestWaitForDevice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "md0")
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(path, nil, 0600)
	}()
	assert.NoError(t, WaitForDevice(context.Background(), path, 10*time.Second))
}

func TestWaitForDeviceTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "md0")
	err := WaitForDevice(context.Background(), path, 100*time.Millisecond)
	assert.True(t, errors.Is(err, poll.ErrTimeout))
}
