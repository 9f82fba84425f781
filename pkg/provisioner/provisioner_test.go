package provisioner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/carina-io/remotefs/pkg/configuration"
	"github.com/carina-io/remotefs/pkg/devicemanager/raid"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/pkg/metrics"
	"github.com/carina-io/remotefs/pkg/mount"
)

// recorder collects the calls of every fake in order
type recorder struct {
	calls []string
}

func (r *recorder) add(call string) {
	r.calls = append(r.calls, call)
}

type fakeInventory struct {
	*recorder
	disks []*types.BlockDevice
	err   error
}

func (f *fakeInventory) ListDataDisks() ([]*types.BlockDevice, error) {
	f.add("inventory")
	return f.disks, f.err
}

type fakePartitioner struct{ *recorder }

func (f *fakePartitioner) EnsurePartitioned(disks []*types.BlockDevice) (int, error) {
	f.add("partition")
	for _, d := range disks {
		d.Partitioned = true
	}
	return len(disks), nil
}

type fakeAssembler struct {
	*recorder
	result *raid.Result
	err    error
}

func (f *fakeAssembler) Reconcile(_ context.Context, level int, fsType string, disks []*types.BlockDevice) (*raid.Result, error) {
	f.add("raid")
	return f.result, f.err
}

type fakeFormatter struct{ *recorder }

func (f *fakeFormatter) Format(target *types.FilesystemTarget) error {
	f.add("format " + target.Device)
	target.Formatted = true
	if target.UUID == "" {
		target.UUID = "5e1c6b8e-4b1f-4a55-9d0e-2e4c2d1b7a10"
	}
	return nil
}

func (f *fakeFormatter) Resize(target *types.FilesystemTarget, mountpath string) error {
	f.add("resize " + target.Device + " " + mountpath)
	return nil
}

type fakeMounter struct {
	*recorder
	local mount.LocalMount
}

func (f *fakeMounter) EnsureMounted(m mount.LocalMount) error {
	f.add("mount " + m.Path)
	f.local = m
	return nil
}

func (f *fakeMounter) MountClient(_ context.Context, source, path string) error {
	f.add("mount client " + source + " " + path)
	return nil
}

type fakeServices struct{ *recorder }

func (f *fakeServices) IsActive(name string) bool { return true }
func (f *fakeServices) Start(name string) error  { return nil }
func (f *fakeServices) EnsureRunning(name string) error {
	f.add("service " + name)
	return nil
}

type fakeExporter struct{ *recorder }

func (f *fakeExporter) Export(path string) error {
	f.add("export " + path)
	return nil
}

type fakeTuner struct{ *recorder }

func (f *fakeTuner) Tune(settings map[string]string) error {
	f.add("tune")
	return nil
}

// singleCluster glusterd of a one node pool
type singleCluster struct {
	*recorder
	exists bool
}

func (f *singleCluster) Ping(string) bool                   { return true }
func (f *singleCluster) PeerProbe(string) error             { return nil }
func (f *singleCluster) ConnectedPeerCount() (int, error)   { return 0, nil }
func (f *singleCluster) VolumeExists(string) bool           { return f.exists }
func (f *singleCluster) VolumeStarted(string) (bool, error) { return f.exists, nil }
func (f *singleCluster) VolumeCreate(volume string, args []string, transport string, bricks []string) error {
	f.add("volume create " + volume + " " + bricks[0])
	f.exists = true
	return nil
}
func (f *singleCluster) VolumeSet(volume, key, value string) error { return nil }
func (f *singleCluster) VolumeStart(volume string) error {
	f.add("volume start " + volume)
	return nil
}

func newTestProvisioner(c *configuration.Config, result *raid.Result) (*Provisioner, *recorder, *fakeMounter) {
	r := &recorder{}
	m := &fakeMounter{recorder: r}
	disks := []*types.BlockDevice{{Path: "/dev/sdc", Type: types.DiskType}, {Path: "/dev/sdd", Type: types.DiskType}}
	p := &Provisioner{
		Config:      c,
		Inventory:   &fakeInventory{recorder: r, disks: disks},
		Partitioner: &fakePartitioner{recorder: r},
		Assembler:   &fakeAssembler{recorder: r, result: result},
		Formatter:   &fakeFormatter{recorder: r},
		Mounter:     m,
		Cluster:     &singleCluster{recorder: r},
		Services:    &fakeServices{recorder: r},
		Exporter:    &fakeExporter{recorder: r},
		Tuner:       &fakeTuner{recorder: r},
		Report:      metrics.NewReport(c.ServerType),
		Clock:       testclock.NewFakeClock(time.Now()),
	}
	return p, r, m
}

func createResult() *raid.Result {
	return &raid.Result{
		Decision: raid.Decision{Action: raid.Create, Target: "/dev/md0", NeedsFormat: true},
		Target:   &types.FilesystemTarget{Device: "/dev/md0", Filesystem: "ext4"},
	}
}

func nfsConfig() *configuration.Config {
	return &configuration.Config{
		ServerType: "nfs",
		Filesystem: "ext4",
		RaidLevel:  0,
		MountPath:  "/data",
	}
}

func TestRunNFS(t *testing.T) {
	c := nfsConfig()
	c.TCPTuning = true
	p, r, m := newTestProvisioner(c, createResult())

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{
		"tune",
		"inventory",
		"partition",
		"raid",
		"format /dev/md0",
		"mount /data",
		"export /data",
	}, r.calls)
	assert.Equal(t, "", m.local.BrickDir)
	assert.Equal(t, "nfs", m.local.ServerType)
	assert.NotEmpty(t, m.local.Target.UUID)
}

func TestRunGlusterFS(t *testing.T) {
	c := &configuration.Config{
		ServerType:    "glusterfs",
		Filesystem:    "btrfs",
		RaidLevel:     0,
		MountPath:     "/mnt/gluster",
		Peers:         []string{"10.0.0.4"},
		SelfIP:        "10.0.0.4",
		ServerOptions: "distributed,tcp",
	}
	result := &raid.Result{
		Decision: raid.Decision{Action: raid.Create, Target: "/dev/sdc1"},
		Target:   &types.FilesystemTarget{Device: "/dev/sdc1", Filesystem: "btrfs", Formatted: true, UUID: "0b8b7a3a-2f4e-4b8e-9a43-7f1a1b2c3d4e"},
	}
	p, r, m := newTestProvisioner(c, result)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{
		"inventory",
		"partition",
		"raid",
		"format /dev/sdc1",
		"mount /gluster/brick",
		"service glusterd",
		"volume create gv0 10.0.0.4:/gluster/brick/brick0",
		"volume start gv0",
		"mount client 10.0.0.4:/gv0 /mnt/gluster",
	}, r.calls)
	assert.Equal(t, "/gluster/brick/brick0", m.local.BrickDir)
}

func TestRunAttach(t *testing.T) {
	c := nfsConfig()
	c.Attach = true
	p, r, _ := newTestProvisioner(c, createResult())

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"inventory", "partition", "raid", "format /dev/md0"}, r.calls)
}

func TestRunGrowResizes(t *testing.T) {
	result := &raid.Result{
		Decision: raid.Decision{Action: raid.Grow, Target: "/dev/md0", NeedsResize: true},
		Target:   &types.FilesystemTarget{Device: "/dev/md0", Filesystem: "ext4", Formatted: true, UUID: "5e1c6b8e-4b1f-4a55-9d0e-2e4c2d1b7a10"},
	}
	p, r, _ := newTestProvisioner(nfsConfig(), result)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{
		"inventory",
		"partition",
		"raid",
		"format /dev/md0",
		"mount /data",
		"resize /dev/md0 /data",
		"export /data",
	}, r.calls)
}

func TestRunStopsOnError(t *testing.T) {
	p, r, _ := newTestProvisioner(nfsConfig(), nil)
	p.Assembler.(*fakeAssembler).err = errors.New("mdadm: cannot open /dev/sdc1: Device or resource busy")

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raid")
	assert.Equal(t, []string{"inventory", "partition", "raid"}, r.calls)
}

func TestRunNoDisks(t *testing.T) {
	p, r, _ := newTestProvisioner(nfsConfig(), createResult())
	p.Inventory.(*fakeInventory).disks = nil

	err := p.Run(context.Background())
	assert.True(t, errors.Is(err, types.ErrConfiguration), "got %v", err)
	assert.Equal(t, []string{"inventory"}, r.calls)
}

func TestRunInvalidConfig(t *testing.T) {
	c := nfsConfig()
	c.Filesystem = "zfs"
	p, r, _ := newTestProvisioner(c, createResult())

	err := p.Run(context.Background())
	assert.True(t, errors.Is(err, types.ErrConfiguration), "got %v", err)
	assert.Empty(t, r.calls)
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/data", LocalPath(nfsConfig()))
	assert.Equal(t, "/gluster/brick", LocalPath(&configuration.Config{ServerType: "glusterfs", MountPath: "/data"}))
}
