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

package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/carina-io/remotefs/pkg/configuration"
	"github.com/carina-io/remotefs/pkg/provisioner"
	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

func subMain() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer log.Sync()

	c, err := configuration.Load(v, configFile)
	if err != nil {
		return err
	}
	if c.Debug {
		log.SetDebug(true)
	}

	if c.IsGluster() {
		if err := c.ResolveSelfIP(nil); err != nil {
			return err
		}
	}
	log.Infof("server type %s filesystem %s raid level %d mount path %s", c.ServerType, c.Filesystem, c.RaidLevel, c.MountPath)

	p := provisioner.New(c, &exec.CommandExecutor{})
	runErr := p.Run(ctx)
	if c.ReportFile != "" {
		if err := p.Report.WriteToFile(c.ReportFile); err != nil {
			log.Warnf("%s", err.Error())
		}
	}
	if runErr != nil {
		log.Errorf("provisioning failed: %+v", runErr)
		return runErr
	}
	log.Info("provisioning finished")
	return nil
}
