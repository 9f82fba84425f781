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

package configuration

import (
	"net"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/vishvananda/netlink"

	"github.com/carina-io/remotefs"
	"github.com/carina-io/remotefs/pkg/devicemanager/types"
	"github.com/carina-io/remotefs/pkg/filesystem"
	"github.com/carina-io/remotefs/utils"
	"github.com/carina-io/remotefs/utils/log"
)

// 配置项名称, 同时是命令行参数名
const (
	KeyAttach        = "attach"
	KeyRebalance     = "rebalance"
	KeyFilesystem    = "filesystem"
	KeyPeers         = "peers"
	KeyMountPath     = "mount-path"
	KeyTCPTuning     = "tcp-tuning"
	KeyServerOptions = "server-options"
	KeyPremium       = "premium"
	KeyRaidLevel     = "raid-level"
	KeyServerType    = "server-type"
	KeyVMOffset      = "vm-offset"
	KeySelfIP        = "self-ip"
	KeyInterface     = "interface"
	KeyFstab         = "fstab"
	KeyExports       = "exports"
	KeyReportFile    = "report-file"
	KeyDebug         = "debug"

	DefaultMountPath = "/data"
)

var opt = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

// Config the inputs of one provisioning run
type Config struct {
	Attach        bool     `mapstructure:"attach"`
	Rebalance     bool     `mapstructure:"rebalance"`
	Filesystem    string   `mapstructure:"filesystem"`
	Peers         []string `mapstructure:"peers"`
	MountPath     string   `mapstructure:"mount-path"`
	TCPTuning     bool     `mapstructure:"tcp-tuning"`
	ServerOptions string   `mapstructure:"server-options"`
	Premium       bool     `mapstructure:"premium"`
	RaidLevel     int      `mapstructure:"raid-level"`
	ServerType    string   `mapstructure:"server-type"`
	VMOffset      bool     `mapstructure:"vm-offset"`
	SelfIP        string   `mapstructure:"self-ip"`
	Interface     string   `mapstructure:"interface"`
	FstabPath     string   `mapstructure:"fstab"`
	ExportsPath   string   `mapstructure:"exports"`
	ReportFile    string   `mapstructure:"report-file"`
	Debug         bool     `mapstructure:"debug"`
}

// New a viper instance with defaults, reading REMOTEFS_* environment variables
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(remotefs.ConfigEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// every key needs a default, AutomaticEnv only serves keys viper knows
	for _, k := range []string{KeyAttach, KeyRebalance, KeyTCPTuning, KeyPremium, KeyVMOffset, KeyDebug} {
		v.SetDefault(k, false)
	}
	for _, k := range []string{KeyServerOptions, KeySelfIP, KeyReportFile} {
		v.SetDefault(k, "")
	}
	v.SetDefault(KeyPeers, []string{})
	v.SetDefault(KeyFilesystem, remotefs.FilesystemExt4)
	v.SetDefault(KeyMountPath, DefaultMountPath)
	v.SetDefault(KeyRaidLevel, remotefs.RaidLevelUnset)
	v.SetDefault(KeyServerType, remotefs.ServerTypeNFS)
	v.SetDefault(KeyInterface, remotefs.DefaultNetInterface)
	v.SetDefault(KeyFstab, remotefs.DefaultFstabPath)
	v.SetDefault(KeyExports, remotefs.DefaultExportsPath)
	return v
}

// Load reads the optional config file and decodes v. Values set by flags
// bound to v take precedence over the file and the environment.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", configFile)
		}
		log.Infof("loaded configuration from %s", v.ConfigFileUsed())
	}

	c := &Config{}
	if err := v.Unmarshal(c, opt); err != nil {
		return nil, errors.Wrap(err, "decode configuration")
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	c.ServerType = strings.ToLower(strings.TrimSpace(c.ServerType))
	c.Filesystem = strings.ToLower(strings.TrimSpace(c.Filesystem))
	c.SelfIP = strings.TrimSpace(c.SelfIP)

	var peers []string
	for _, p := range c.Peers {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	c.Peers = peers
}

// IsGluster whether the node joins a gluster cluster
func (c *Config) IsGluster() bool {
	return c.ServerType == remotefs.ServerTypeGlusterFS
}

// Validate rejects inputs no provisioning step can act on
func (c *Config) Validate() error {
	switch c.ServerType {
	case remotefs.ServerTypeNFS, remotefs.ServerTypeGlusterFS:
	default:
		return errors.Wrapf(types.ErrConfiguration, "unsupported server type %q", c.ServerType)
	}
	if !filesystem.Supported(c.Filesystem) {
		return errors.Wrapf(types.ErrConfiguration, "unsupported filesystem %q, supported %v", c.Filesystem, filesystem.SupportedTypes())
	}
	if c.RaidLevel < remotefs.RaidLevelUnset {
		return errors.Wrapf(types.ErrConfiguration, "invalid raid level %d", c.RaidLevel)
	}
	if !filepath.IsAbs(c.MountPath) {
		return errors.Wrapf(types.ErrConfiguration, "mount path %q is not absolute", c.MountPath)
	}

	if !c.IsGluster() {
		return nil
	}
	if len(c.Peers) == 0 {
		return errors.Wrap(types.ErrConfiguration, "glusterfs requires a peer list")
	}
	for _, p := range c.Peers {
		if net.ParseIP(p) == nil {
			return errors.Wrapf(types.ErrConfiguration, "peer %q is not an ip address", p)
		}
	}
	if c.SelfIP != "" && !utils.ContainsString(c.Peers, c.SelfIP) {
		return errors.Wrapf(types.ErrConfiguration, "self address %s is not in peer list %v", c.SelfIP, c.Peers)
	}
	return nil
}

// AddressLookup returns the ipv4 addresses of a network interface
type AddressLookup func(ifname string) ([]string, error)

// ResolveSelfIP fills SelfIP from the first ipv4 address of the configured
// interface when it was not given
func (c *Config) ResolveSelfIP(lookup AddressLookup) error {
	if c.SelfIP != "" {
		return nil
	}
	if lookup == nil {
		lookup = InterfaceAddresses
	}
	addrs, err := lookup(c.Interface)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return errors.Wrapf(types.ErrConfiguration, "interface %s has no ipv4 address", c.Interface)
	}
	c.SelfIP = addrs[0]
	log.Infof("self address %s from %s", c.SelfIP, c.Interface)
	return nil
}

// InterfaceAddresses reads the ipv4 addresses of ifname over netlink
func InterfaceAddresses(ifname string) ([]string, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, errors.Wrapf(err, "find interface %s", ifname)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, errors.Wrapf(err, "list addresses of %s", ifname)
	}
	var ips []string
	for _, a := range addrs {
		if a.IP != nil {
			ips = append(ips, a.IP.String())
		}
	}
	return ips, nil
}
