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

package raid

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/carina-io/remotefs/pkg/filesystem"
	"github.com/carina-io/remotefs/utils/log"
	"github.com/carina-io/remotefs/utils/poll"
)

// WaitForDevice blocks until path shows up in its directory or timeout elapses
func WaitForDevice(ctx context.Context, path string, timeout time.Duration) error {
	if ok, _ := filesystem.IsBlockDevice(path); ok {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create device watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(path))
	}
	// the node may have appeared before the watch was registered
	if ok, _ := filesystem.IsBlockDevice(path); ok {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.Wrapf(poll.ErrTimeout, "wait for device %s", path)
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.Errorf("device watcher for %s closed", path)
			}
			if filepath.Clean(event.Name) == filepath.Clean(path) && event.Op&fsnotify.Create == fsnotify.Create {
				log.Debugf("device %s created", path)
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.Errorf("device watcher for %s closed", path)
			}
			log.Warnf("device watcher: %v", err)
		}
	}
}
