package sysctl

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

// TCPSettings kernel network buffers sized for storage traffic
var TCPSettings = map[string]string{
	"net.core.rmem_default":              "16777216",
	"net.core.rmem_max":                  "16777216",
	"net.core.wmem_default":              "16777216",
	"net.core.wmem_max":                  "16777216",
	"net.core.netdev_max_backlog":        "30000",
	"net.ipv4.tcp_max_syn_backlog":       "80960",
	"net.ipv4.tcp_rmem":                  "4096 87380 16777216",
	"net.ipv4.tcp_wmem":                  "4096 65536 16777216",
	"net.ipv4.tcp_slow_start_after_idle": "0",
	"net.ipv4.tcp_tw_reuse":              "1",
	"net.ipv4.tcp_mtu_probing":           "1",
}

type Tuner interface {
	Tune(settings map[string]string) error
}

type SysctlTuner struct {
	Executor exec.Executor
}

func NewTuner(executor exec.Executor) *SysctlTuner {
	return &SysctlTuner{Executor: executor}
}

// Tune writes every setting to the running kernel, in key order
func (s *SysctlTuner) Tune(settings map[string]string) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		kv := k + "=" + settings[k]
		if _, err := s.Executor.ExecuteCommandWithCombinedOutput("sysctl", "-w", kv); err != nil {
			return errors.Wrapf(err, "sysctl %s", kv)
		}
		log.Debugf("set %s", kv)
	}
	log.Infof("applied %d kernel settings", len(keys))
	return nil
}
