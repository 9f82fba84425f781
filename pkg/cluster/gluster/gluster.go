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

// Package gluster wraps the gluster cli. Command output is parsed here only,
// callers get typed answers.
package gluster

import (
	"fmt"
	"strings"

	"github.com/carina-io/remotefs/utils/exec"
	"github.com/carina-io/remotefs/utils/log"
)

const (
	cmdGluster = "gluster"
	cmdPing    = "ping"

	connectedState = "State: Peer in Cluster (Connected)"
)

type Client struct {
	Executor exec.Executor
}

func NewClient(executor exec.Executor) *Client {
	return &Client{Executor: executor}
}

func (c *Client) run(arg ...string) (string, error) {
	args := append([]string{"--mode=script"}, arg...)
	return c.Executor.ExecuteCommandWithCombinedOutput(cmdGluster, args...)
}

// Ping checks the peer answers icmp
func (c *Client) Ping(address string) bool {
	_, err := c.Executor.ExecuteCommandWithCombinedOutput(cmdPing, "-c", "2", address)
	return err == nil
}

// PeerProbe asks glusterd to add address to the trusted pool
func (c *Client) PeerProbe(address string) error {
	out, err := c.run("peer", "probe", address)
	if err != nil {
		return fmt.Errorf("peer probe %s failed: err=%v, output=%s", address, err, out)
	}
	log.Debugf("peer probe %s: %s", address, out)
	return nil
}

// ConnectedPeerCount the number of peers glusterd reports connected
func (c *Client) ConnectedPeerCount() (int, error) {
	out, err := c.run("peer", "status")
	if err != nil {
		return 0, fmt.Errorf("peer status failed: err=%v, output=%s", err, out)
	}
	return countConnected(out), nil
}

func countConnected(status string) int {
	n := 0
	for _, line := range strings.Split(status, "\n") {
		if strings.TrimSpace(line) == connectedState {
			n++
		}
	}
	return n
}

// VolumeExists whether the volume can be queried from this node
func (c *Client) VolumeExists(volume string) bool {
	_, err := c.run("volume", "info", volume)
	return err == nil
}

// VolumeStarted whether volume info reports the volume started
func (c *Client) VolumeStarted(volume string) (bool, error) {
	out, err := c.run("volume", "info", volume)
	if err != nil {
		return false, fmt.Errorf("volume info %s failed: err=%v, output=%s", volume, err, out)
	}
	for _, line := range strings.Split(out, "\n") {
		kv := strings.SplitN(line, ":", 2)
		if len(kv) == 2 && strings.TrimSpace(kv[0]) == "Status" {
			return strings.TrimSpace(kv[1]) == "Started", nil
		}
	}
	return false, nil
}

// VolumeCreate creates volume from bricks, args carry the layout, e.g. replica 3
func (c *Client) VolumeCreate(volume string, args []string, transport string, bricks []string) error {
	cmd := append([]string{"volume", "create", volume}, args...)
	cmd = append(cmd, "transport", transport)
	cmd = append(cmd, bricks...)
	out, err := c.run(cmd...)
	if err != nil {
		return fmt.Errorf("volume create %s failed: err=%v, output=%s", volume, err, out)
	}
	log.Info(out)
	return nil
}

func (c *Client) VolumeSet(volume, key, value string) error {
	out, err := c.run("volume", "set", volume, key, value)
	if err != nil {
		return fmt.Errorf("volume set %s %s %s failed: err=%v, output=%s", volume, key, value, err, out)
	}
	return nil
}

func (c *Client) VolumeStart(volume string) error {
	out, err := c.run("volume", "start", volume)
	if err != nil {
		return fmt.Errorf("volume start %s failed: err=%v, output=%s", volume, err, out)
	}
	log.Info(out)
	return nil
}
