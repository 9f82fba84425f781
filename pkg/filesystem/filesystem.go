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

package filesystem

import (
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/utils/exec"
)

var (
	// ErrFilesystemExists is returned when mkfs would overwrite an existing filesystem
	ErrFilesystemExists = errors.New("filesystem already exists")
	// ErrUnsupportedFilesystem unknown filesystem type
	ErrUnsupportedFilesystem = pkgerrors.Wrap(types.ErrConfiguration, "unsupported filesystem")
)

// Filesystem create or grow a filesystem on a block device
type Filesystem interface {
	Type() string
	Device() string
	Mkfs() error
	// Resize grows the filesystem to the size of its device, mountpath is
	// used by filesystems that resize online only
	Resize(mountpath string) error
}

type newFilesystem func(device string, executor exec.Executor) Filesystem

var fsTypeMap = map[string]newFilesystem{}

// New returns the Filesystem of type fsType on device
func New(fsType, device string, executor exec.Executor) (Filesystem, error) {
	fn, ok := fsTypeMap[fsType]
	if !ok {
		return nil, pkgerrors.Wrapf(ErrUnsupportedFilesystem, "%q", fsType)
	}
	return fn(device, executor), nil
}

// Supported reports whether fsType can be formatted
func Supported(fsType string) bool {
	_, ok := fsTypeMap[fsType]
	return ok
}

// SupportedTypes registered filesystem types, sorted
func SupportedTypes() []string {
	var names []string
	for k := range fsTypeMap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
