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

// Package provisioner runs the provisioning steps of one node in order:
// inventory, partition, raid, format, mount, then the gluster bootstrap or
// the nfs export. Every step returns its error, nothing is rolled back.
package provisioner

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/cluster/bootstrap"
	"github.com/carina-io/remotefs/pkg/cluster/gluster"
	"github.com/carina-io/remotefs/pkg/configuration"
	"github.com/carina-io/remotefs/pkg/devicemanager/btrfs"
	"github.com/carina-io/remotefs/pkg/devicemanager/inventory"
	"github.com/carina-io/remotefs/pkg/devicemanager/mdadm"
	"github.com/carina-io/remotefs/pkg/devicemanager/partition"
	"github.com/carina-io/remotefs/pkg/devicemanager/raid"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/pkg/filesystem"
	"github.com/carina-io/remotefs/pkg/metrics"
	"github.com/carina-io/remotefs/pkg/mount"
	"github.com/carina-io/remotefs/pkg/service"
	"github.com/carina-io/remotefs/pkg/sysctl"
	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

// step names in the run report
const (
	StepTuning    = "tcp_tuning"
	StepInventory = "inventory"
	StepPartition = "partition"
	StepRaid      = "raid"
	StepFormat    = "format"
	StepMount     = "mount"
	StepResize    = "resize"
	StepService   = "service"
	StepBootstrap = "bootstrap"
	StepExport    = "export"
)

type Partitioner interface {
	EnsurePartitioned(disks []*types.BlockDevice) (int, error)
}

type Assembler interface {
	Reconcile(ctx context.Context, level int, fsType string, disks []*types.BlockDevice) (*raid.Result, error)
}

type Formatter interface {
	Format(target *types.FilesystemTarget) error
	Resize(target *types.FilesystemTarget, mountpath string) error
}

type Mounter interface {
	EnsureMounted(m mount.LocalMount) error
	MountClient(ctx context.Context, source, path string) error
}

type Exporter interface {
	Export(path string) error
}

type Provisioner struct {
	Config      *configuration.Config
	Inventory   inventory.Inventory
	Partitioner Partitioner
	Assembler   Assembler
	Formatter   Formatter
	Mounter     Mounter
	Cluster     bootstrap.Cluster
	Services    service.Manager
	Exporter    Exporter
	Tuner       sysctl.Tuner
	Report      *metrics.Report
	Clock       clock.Clock
}

// New wires the provisioning steps to the host through executor
func New(c *configuration.Config, executor exec.Executor) *Provisioner {
	probe := filesystem.NewProbe(executor)
	services := service.NewServiceManager(executor)
	exporter := service.NewNFSExporter(executor, services)
	exporter.ExportsPath = c.ExportsPath

	return &Provisioner{
		Config:      c,
		Inventory:   inventory.NewDiskInventory(executor),
		Partitioner: partition.NewLocalPartitionImplement(executor),
		Assembler:   raid.NewEngine(mdadm.NewManager(executor), btrfs.NewManager(executor), probe, LocalPath(c), c.Rebalance),
		Formatter:   filesystem.NewFormatter(executor),
		Mounter:     mount.NewReconciler(executor, c.FstabPath),
		Cluster:     gluster.NewClient(executor),
		Services:    services,
		Exporter:    exporter,
		Tuner:       sysctl.NewTuner(executor),
		Report:      metrics.NewReport(c.ServerType),
		Clock:       clock.RealClock{},
	}
}

// LocalPath where the local filesystem is mounted. Gluster servers mount it
// below the brick root, the configured path then receives the volume.
func LocalPath(c *configuration.Config) string {
	if c.IsGluster() {
		return remotefs.GlusterBrickMountPath
	}
	return c.MountPath
}

func (p *Provisioner) step(name string, fn func() error) error {
	log.Infof("==== %s ====", name)
	if err := p.Report.Step(name, fn); err != nil {
		log.Errorf("step %s failed: %s", name, err.Error())
		return errors.WithMessage(err, name)
	}
	return nil
}

// Run provisions the node. It is safe to re-run after success or partial failure.
func (p *Provisioner) Run(ctx context.Context) (err error) {
	defer func() { p.Report.Finish(err) }()
	c := p.Config

	if err := c.Validate(); err != nil {
		return err
	}
	p.Report.VMOffset(c.VMOffset)
	if c.VMOffset {
		log.Info("vm offset requested")
	}

	if c.TCPTuning {
		if err := p.step(StepTuning, func() error { return p.Tuner.Tune(sysctl.TCPSettings) }); err != nil {
			return err
		}
	}

	var disks []*types.BlockDevice
	if err := p.step(StepInventory, func() error {
		var err error
		disks, err = p.Inventory.ListDataDisks()
		if err == nil && len(disks) == 0 {
			err = errors.Wrap(types.ErrConfiguration, "no data disks attached")
		}
		return err
	}); err != nil {
		return err
	}

	if err := p.step(StepPartition, func() error {
		_, err := p.Partitioner.EnsurePartitioned(disks)
		return err
	}); err != nil {
		return err
	}

	var result *raid.Result
	if err := p.step(StepRaid, func() error {
		var err error
		result, err = p.Assembler.Reconcile(ctx, c.RaidLevel, c.Filesystem, disks)
		if result != nil {
			p.Report.RaidAction(result.Decision.Action.String())
		}
		return err
	}); err != nil {
		return err
	}
	target := result.Target

	if err := p.step(StepFormat, func() error { return p.Formatter.Format(target) }); err != nil {
		return err
	}
	log.Infof("filesystem target %s", target)

	if c.Attach {
		log.Info("attach mode, disks are prepared")
		return nil
	}

	local := mount.LocalMount{
		Target:     target,
		Path:       LocalPath(c),
		Premium:    c.Premium,
		ServerType: c.ServerType,
	}
	if c.IsGluster() {
		local.BrickDir = remotefs.GlusterBrickLocation
	}
	if err := p.step(StepMount, func() error { return p.Mounter.EnsureMounted(local) }); err != nil {
		return err
	}

	if result.Decision.NeedsResize {
		if err := p.step(StepResize, func() error { return p.Formatter.Resize(target, local.Path) }); err != nil {
			return err
		}
	}

	if c.IsGluster() {
		return p.runGluster(ctx)
	}
	return p.step(StepExport, func() error { return p.Exporter.Export(c.MountPath) })
}

func (p *Provisioner) runGluster(ctx context.Context) error {
	c := p.Config
	if err := p.step(StepService, func() error { return p.Services.EnsureRunning(remotefs.GlusterServiceName) }); err != nil {
		return err
	}
	return p.step(StepBootstrap, func() error {
		b, err := bootstrap.New(p.Cluster, p.Mounter, c.SelfIP, c.Peers, c.ServerOptions, c.MountPath)
		if err != nil {
			return err
		}
		b.Clock = p.Clock
		return b.Run(ctx)
	})
}
