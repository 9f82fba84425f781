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

package metrics

import (
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/carina-io/remotefs/utils/log"
)

const (
	namespace     string = "remotefs"
	stepSubSystem string = "step"
)

var nodeName = nodeNameFromEnv()

func nodeNameFromEnv() string {
	if n := os.Getenv("NODE_NAME"); n != "" {
		return n
	}
	n, _ := os.Hostname()
	return n
}

// Report records one provisioning run: duration and outcome of every step,
// the raid action taken and the overall result. It is written once at exit
// in the node-exporter textfile format.
type Report struct {
	Clock    clock.Clock
	registry *prometheus.Registry

	stepDuration *prometheus.GaugeVec
	stepSuccess  *prometheus.GaugeVec
	raidAction   *prometheus.GaugeVec
	vmOffset     prometheus.Gauge
	success      prometheus.Gauge
	lastRun      prometheus.Gauge
}

func NewReport(serverType string) *Report {
	constLabels := prometheus.Labels{"nodename": nodeName, "server_type": serverType}
	r := &Report{
		Clock:    clock.RealClock{},
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   stepSubSystem,
			Name:        "duration_seconds",
			Help:        "Duration of a provisioning step.",
			ConstLabels: constLabels,
		}, []string{"step"}),
		stepSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   stepSubSystem,
			Name:        "success",
			Help:        "Whether a provisioning step succeeded.",
			ConstLabels: constLabels,
		}, []string{"step"}),
		raidAction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "raid_action",
			Help:        "Action chosen for the raid array, 1 for the action taken.",
			ConstLabels: constLabels,
		}, []string{"action"}),
		vmOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "vm_offset",
			Help:        "Whether the node was provisioned with a vm offset.",
			ConstLabels: constLabels,
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "success",
			Help:        "Whether the last provisioning run succeeded.",
			ConstLabels: constLabels,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Completion time of the last provisioning run.",
			ConstLabels: constLabels,
		}),
	}
	r.registry.MustRegister(r.stepDuration, r.stepSuccess, r.raidAction, r.vmOffset, r.success, r.lastRun)
	return r
}

// Step runs fn and records its duration and outcome under name
func (r *Report) Step(name string, fn func() error) error {
	begin := r.Clock.Now()
	err := fn()
	duration := r.Clock.Since(begin)

	var success float64
	if err != nil {
		log.Debug("msg ", "step failed ", "name ", name, " duration_seconds ", duration.Seconds(), " err ", err)
	} else {
		log.Debug("msg ", "step succeeded ", "name ", name, " duration_seconds ", duration.Seconds())
		success = 1
	}
	r.stepDuration.WithLabelValues(name).Set(duration.Seconds())
	r.stepSuccess.WithLabelValues(name).Set(success)
	return err
}

func (r *Report) RaidAction(action string) {
	r.raidAction.Reset()
	r.raidAction.WithLabelValues(action).Set(1)
}

func (r *Report) VMOffset(offset bool) {
	r.vmOffset.Set(boolValue(offset))
}

// Finish records the overall result of the run
func (r *Report) Finish(err error) {
	r.success.Set(boolValue(err == nil))
	r.lastRun.Set(float64(r.Clock.Now().Unix()))
}

func (r *Report) Registry() *prometheus.Registry {
	return r.registry
}

// WriteToFile writes the report atomically, the textfile collector never
// sees a partial file
func (r *Report) WriteToFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
