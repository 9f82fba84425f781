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

package mount

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/carina-io/remotefs/pkg/devicemanager/types"
)

const glusterClientOptions = "defaults,_netdev,noauto,x-systemd.automount,fetch-attempts=10"

// MountOptions fstab options by storage tier. Premium disks sit behind a
// battery backed read cache, barriers are disabled there; standard disks are
// thin provisioned and get discard.
func MountOptions(fsType string, premium bool) string {
	opts := "defaults,noatime"
	switch {
	case premium && fsType == "btrfs":
		return opts + ",nobarrier"
	case premium && types.IsExtFilesystem(fsType):
		return opts + ",barrier=0"
	case premium:
		return opts
	}
	return opts + ",discard"
}

// FstabEntry the line mounting the filesystem uuid at path
func FstabEntry(uuid, path, fsType string, premium bool) string {
	return fmt.Sprintf("UUID=%s %s %s %s 0 2", uuid, path, fsType, MountOptions(fsType, premium))
}

// ClientFstabEntry the line mounting a gluster volume through source, e.g. 10.0.0.4:/gv0
func ClientFstabEntry(source, path string) string {
	return fmt.Sprintf("%s %s glusterfs %s 0 2", source, path, glusterClientOptions)
}

// HasEntry reports whether a line of file starts with key as its first field
func HasEntry(file, key string) (bool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "read %s", file)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == key {
			return true, nil
		}
	}
	return false, nil
}

// AppendEntry appends line to file unless an entry keyed by key exists.
// It returns true when the line was added.
func AppendEntry(file, key, line string) (bool, error) {
	found, err := HasEntry(file, key)
	if err != nil || found {
		return false, err
	}

	data, err := os.ReadFile(file)
	if err != nil && !os.IsNotExist(err) {
		return false, errors.Wrapf(err, "read %s", file)
	}
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, errors.Wrapf(err, "open %s", file)
	}
	defer f.Close()

	if len(data) > 0 && data[len(data)-1] != '\n' {
		line = "\n" + line
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		return false, errors.Wrapf(err, "append to %s", file)
	}
	return true, nil
}
