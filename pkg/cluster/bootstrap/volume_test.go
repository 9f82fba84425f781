package bootstrap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carina-io/remotefs/pkg/devicemanager/types"
)

func TestParseVolumeSpec(t *testing.T) {
	tests := []struct {
		spec      string
		nodes     int
		volType   types.VolumeType
		args      []string
		transport string
		options   []types.VolumeOption
	}{
		{
			spec: "replica,tcp,performance.cache-size:1GB", nodes: 2,
			volType: types.VolumeReplicated, args: []string{"replica", "2"}, transport: "tcp",
			options: []types.VolumeOption{{Key: "performance.cache-size", Value: "1GB"}},
		},
		{
			spec: "Stripe,rdma", nodes: 4,
			volType: types.VolumeStriped, args: []string{"stripe", "4"}, transport: "rdma",
		},
		{
			spec: "distributed,,nfs.disable:on,network.ping-timeout:10", nodes: 3,
			volType: types.VolumeDistributed, transport: "tcp",
			options: []types.VolumeOption{{Key: "nfs.disable", Value: "on"}, {Key: "network.ping-timeout", Value: "10"}},
		},
		{
			spec: "replica 3 arbiter 1,tcp", nodes: 3,
			volType: types.VolumeCustom, args: []string{"replica", "3", "arbiter", "1"}, transport: "tcp",
		},
		{
			spec: "disperse 3", nodes: 3,
			volType: types.VolumeCustom, args: []string{"disperse", "3"}, transport: "tcp",
		},
		{
			spec: "", nodes: 1,
			volType: types.VolumeDistributed, transport: "tcp",
		},
		{
			spec: "replica,tcp,diagnostics.brick-log-level:WARNING,", nodes: 2,
			volType: types.VolumeReplicated, args: []string{"replica", "2"}, transport: "tcp",
			options: []types.VolumeOption{{Key: "diagnostics.brick-log-level", Value: "WARNING"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			vs, err := ParseVolumeSpec(tt.spec, tt.nodes)
			require.NoError(t, err)
			assert.Equal(t, tt.volType, vs.Type)
			assert.Equal(t, tt.args, vs.CreateArgs)
			assert.Equal(t, tt.transport, vs.Transport)
			assert.Equal(t, tt.options, vs.Options)
		})
	}
}

func TestParseVolumeSpecErrors(t *testing.T) {
	_, err := ParseVolumeSpec("replica,tcp,performance.cache-size", 2)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
	_, err = ParseVolumeSpec("replica,tcp,:1GB", 2)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
	_, err = ParseVolumeSpec("replica", 0)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestNewVolume(t *testing.T) {
	vs, err := ParseVolumeSpec("replica,tcp", 3)
	require.NoError(t, err)
	v := NewVolume("gv0", vs, []string{"10.0.0.4", "10.0.0.5", "10.0.0.6"})
	assert.Equal(t, []string{
		"10.0.0.4:/gluster/brick/brick0",
		"10.0.0.5:/gluster/brick/brick0",
		"10.0.0.6:/gluster/brick/brick0",
	}, v.Bricks)
	assert.Equal(t, types.VolumeAbsent, v.State)
}
