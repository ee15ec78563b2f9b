// Copyright 2026 The Nodevisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nodevisor

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortsFor(t *testing.T) {
	base := BasePorts{HTTP: 9000, RPC: 9100, Metrics: 9200, Stride: 10}

	tests := []struct {
		index int
		want  Ports
	}{
		{0, Ports{HTTP: 9000, RPC: 9100, Metrics: 9200}},
		{1, Ports{HTTP: 9010, RPC: 9110, Metrics: 9210}},
		{2, Ports{HTTP: 9020, RPC: 9120, Metrics: 9220}},
		{9, Ports{HTTP: 9090, RPC: 9190, Metrics: 9290}},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("index%d", tc.index), func(t *testing.T) {
			assert.Equal(t, tc.want, base.PortsFor(tc.index))
		})
	}
}

func TestLayoutPaths(t *testing.T) {
	l := Layout{
		DataRoot: "/var/db/fleet",
		LogRoot:  "/var/log/fleet",
		PidRoot:  "/var/run/fleet",
	}
	assert.Equal(t, "/var/db/fleet/node-2", l.DataDir(2))
	assert.Equal(t, "/var/log/fleet/node-2", l.LogDir(2))
	assert.Equal(t, "/var/run/fleet/node-2.pid", l.PidFile(2))
}

func TestNodeStateString(t *testing.T) {
	tests := []struct {
		s    NodeState
		want string
	}{
		{StatePending, "pending"},
		{StateStarting, "starting"},
		{StateHealthy, "healthy"},
		{StateUnhealthy, "unhealthy"},
		{StateRestarting, "restarting"},
		{StateStopped, "stopped"},
		{NodeState(99), "unknown"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.s.String())
	}
}

// Node identity must be fully determined by (fleet config, index), with no
// overlap between nodes on ports, directories, or core ranges.
func TestNodeIdentity(t *testing.T) {
	dir := t.TempDir()
	f, err := New(Config{
		Name:       "ident",
		NodeCount:  3,
		CPUPerNode: 2,
		Ports:      BasePorts{HTTP: 9000, RPC: 9100, Metrics: 9200, Stride: 10},
		Layout: Layout{
			DataRoot: filepath.Join(dir, "data"),
			LogRoot:  filepath.Join(dir, "log"),
			PidRoot:  filepath.Join(dir, "run"),
		},
		WorkerPath: "/bin/true",
		Capacity:   &Capacity{Cores: 8, Memory: 8 << 30},
	})
	require.NoError(t, err)

	nodes, _, _ := f.Nodes()
	require.Len(t, nodes, 3)

	seenPorts := map[int]bool{}
	seenDirs := map[string]bool{}
	for i, n := range nodes {
		assert.Equal(t, i, n.Index())
		assert.Equal(t, fmt.Sprintf("ident-%d", i), n.Name())

		p := n.Ports()
		assert.Equal(t, 9000+10*i, p.HTTP)
		for _, port := range []int{p.HTTP, p.RPC, p.Metrics} {
			assert.False(t, seenPorts[port],
				"port %d reused by node %d", port, i)
			seenPorts[port] = true
		}

		for _, d := range []string{n.DataDir(), n.LogDir()} {
			assert.False(t, seenDirs[d],
				"directory %s reused by node %d", d, i)
			seenDirs[d] = true
		}

		assert.Equal(t, StatePending, n.State())
		assert.Equal(t, 0, n.Pid())
	}
}

func TestFindNode(t *testing.T) {
	dir := t.TempDir()
	f, err := New(Config{
		Name:      "find",
		NodeCount: 2,
		Ports:     BasePorts{HTTP: 9000, RPC: 9100, Metrics: 9200},
		Layout: Layout{
			DataRoot: filepath.Join(dir, "data"),
			LogRoot:  filepath.Join(dir, "log"),
			PidRoot:  filepath.Join(dir, "run"),
		},
		WorkerPath: "/bin/true",
		Capacity:   &Capacity{Cores: 4},
	})
	require.NoError(t, err)

	assert.NotNil(t, f.FindNode("find-1"))
	assert.NotNil(t, f.FindNode("1"))
	assert.Nil(t, f.FindNode("find-7"))
	assert.Nil(t, f.FindNode("7"))
	assert.Nil(t, f.FindNode("bogus"))
	assert.Equal(t, f.FindNode("find-0"), f.FindNode("0"))
}

func TestConfigValidation(t *testing.T) {
	dir := t.TempDir()
	layout := Layout{
		DataRoot: filepath.Join(dir, "data"),
		LogRoot:  filepath.Join(dir, "log"),
		PidRoot:  filepath.Join(dir, "run"),
	}
	ports := BasePorts{HTTP: 9000, RPC: 9100, Metrics: 9200}

	_, err := New(Config{NodeCount: 0, WorkerPath: "/bin/true",
		Ports: ports, Layout: layout})
	assert.ErrorIs(t, err, ErrBadNodeCount)

	_, err = New(Config{NodeCount: 1, Ports: ports, Layout: layout})
	assert.ErrorIs(t, err, ErrNoWorker)

	_, err = New(Config{NodeCount: 1, WorkerPath: "/bin/true",
		Layout: layout})
	assert.ErrorIs(t, err, ErrBadPorts)
}
