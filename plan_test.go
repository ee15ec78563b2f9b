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
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		req        PlanRequest
		cap        Capacity
		wantCPU    int
		wantShared bool
		wantErr    error
	}{
		{
			name:    "fits exactly",
			req:     PlanRequest{NodeCount: 4, CPUPerNode: 2},
			cap:     Capacity{Cores: 8},
			wantCPU: 2,
		},
		{
			name:    "fits with room",
			req:     PlanRequest{NodeCount: 2, CPUPerNode: 2},
			cap:     Capacity{Cores: 16},
			wantCPU: 2,
		},
		{
			name:    "oversubscribed shrinks per node",
			req:     PlanRequest{NodeCount: 4, CPUPerNode: 4},
			cap:     Capacity{Cores: 8},
			wantCPU: 2,
		},
		{
			name:       "more nodes than cores shares",
			req:        PlanRequest{NodeCount: 8, CPUPerNode: 1},
			cap:        Capacity{Cores: 4},
			wantCPU:    1,
			wantShared: true,
		},
		{
			name:    "zero cpu hint means one core",
			req:     PlanRequest{NodeCount: 2},
			cap:     Capacity{Cores: 8},
			wantCPU: 1,
		},
		{
			name: "memory oversubscription is tolerated",
			req: PlanRequest{NodeCount: 4, CPUPerNode: 1,
				MemoryPerNode: 1 << 30},
			cap:     Capacity{Cores: 8, Memory: 2 << 30},
			wantCPU: 1,
		},
		{
			name:    "zero nodes rejected",
			req:     PlanRequest{NodeCount: 0, CPUPerNode: 1},
			cap:     Capacity{Cores: 8},
			wantErr: ErrBadNodeCount,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Plan(tc.req, tc.cap, quietLogger())
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.req.NodeCount, plan.NodeCount,
				"node count must never shrink")
			assert.Equal(t, tc.wantCPU, plan.CPUPerNode)
			assert.Equal(t, tc.wantShared, plan.SharedCores)
		})
	}
}

func TestCPURangesDisjoint(t *testing.T) {
	plan, err := Plan(PlanRequest{NodeCount: 4, CPUPerNode: 4},
		Capacity{Cores: 8}, quietLogger())
	require.NoError(t, err)

	used := map[int]int{}
	for i := 0; i < plan.NodeCount; i++ {
		first, last := plan.CPURange(i)
		require.LessOrEqual(t, first, last)
		require.Less(t, last, plan.AvailableCores)
		for c := first; c <= last; c++ {
			owner, taken := used[c]
			require.False(t, taken,
				"core %d assigned to both node %d and node %d",
				c, owner, i)
			used[c] = i
		}
	}
}

func TestCPURangeShared(t *testing.T) {
	plan, err := Plan(PlanRequest{NodeCount: 8, CPUPerNode: 1},
		Capacity{Cores: 4}, quietLogger())
	require.NoError(t, err)
	require.True(t, plan.SharedCores)

	for i := 0; i < plan.NodeCount; i++ {
		first, last := plan.CPURange(i)
		assert.Equal(t, 0, first)
		assert.Equal(t, 3, last)
	}
}

func TestCPURangeClamped(t *testing.T) {
	// 3 nodes on 7 cores: 2 cores each, node ranges must stay in bounds.
	plan, err := Plan(PlanRequest{NodeCount: 3, CPUPerNode: 4},
		Capacity{Cores: 7}, quietLogger())
	require.NoError(t, err)
	require.Equal(t, 2, plan.CPUPerNode)

	for i := 0; i < plan.NodeCount; i++ {
		first, last := plan.CPURange(i)
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, last, 7)
	}
}
