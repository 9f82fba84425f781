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
	"fmt"

	"github.com/pkg/errors"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/mount"
	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

// ExportEntry the exports line sharing path with every client
func ExportEntry(path string) string {
	return fmt.Sprintf("%s *(rw,sync,root_squash,no_subtree_check,mountpoint=%s)", path, path)
}

type NFSExporter struct {
	Executor    exec.Executor
	Services    Manager
	ExportsPath string
}

func NewNFSExporter(executor exec.Executor, services Manager) *NFSExporter {
	return &NFSExporter{
		Executor:    executor,
		Services:    services,
		ExportsPath: remotefs.DefaultExportsPath,
	}
}

// Export shares path over nfs. The exports file keeps a single entry per
// path, the export table is reloaded and the server started when inactive.
func (e *NFSExporter) Export(path string) error {
	added, err := mount.AppendEntry(e.ExportsPath, path, ExportEntry(path))
	if err != nil {
		return errors.Wrap(err, "update exports")
	}
	if added {
		log.Infof("added %s to %s", path, e.ExportsPath)
	} else {
		log.Infof("%s already exported", path)
	}

	if _, err := e.Executor.ExecuteCommandWithCombinedOutput("exportfs", "-ra"); err != nil {
		return errors.Wrap(err, "reload exports")
	}
	out, err := e.Executor.ExecuteCommandWithCombinedOutput("exportfs", "-v")
	if err != nil {
		return errors.Wrap(err, "list exports")
	}
	log.Info(out)

	return e.Services.EnsureRunning(remotefs.NFSServiceName)
}
