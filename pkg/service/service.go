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

package service

import (
	"github.com/coreos/go-systemd/v22/util"
	"github.com/pkg/errors"

	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

// Manager controls system service units
type Manager interface {
	IsActive(name string) bool
	Start(name string) error
	EnsureRunning(name string) error
}

// ServiceManager drives units through systemctl, or the sysv service wrapper
// when the host was not booted with systemd
type ServiceManager struct {
	Executor exec.Executor
	Systemd  bool
}

func NewServiceManager(executor exec.Executor) *ServiceManager {
	return &ServiceManager{
		Executor: executor,
		Systemd:  util.IsRunningSystemd(),
	}
}

func (s *ServiceManager) IsActive(name string) bool {
	var err error
	if s.Systemd {
		_, err = s.Executor.ExecuteCommandWithOutput("systemctl", "is-active", "--quiet", name)
	} else {
		_, err = s.Executor.ExecuteCommandWithOutput("service", name, "status")
	}
	return err == nil
}

func (s *ServiceManager) Start(name string) error {
	var err error
	if s.Systemd {
		_, err = s.Executor.ExecuteCommandWithCombinedOutput("systemctl", "start", name)
	} else {
		_, err = s.Executor.ExecuteCommandWithCombinedOutput("service", name, "start")
	}
	if err != nil {
		return errors.Wrapf(err, "start service %s", name)
	}
	return nil
}

// EnsureRunning starts name unless it is already active
func (s *ServiceManager) EnsureRunning(name string) error {
	if s.IsActive(name) {
		log.Debugf("service %s is active", name)
		return nil
	}
	log.Infof("service %s is not active, starting it", name)
	if err := s.Start(name); err != nil {
		return err
	}
	if !s.IsActive(name) {
		return errors.Errorf("service %s did not become active", name)
	}
	return nil
}
