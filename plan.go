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
	"log"
)

// PlanRequest is the operator's declared budget: how many nodes to run, and
// how much CPU and memory each one should get.  The hints are per node.
type PlanRequest struct {
	NodeCount     int
	CPUPerNode    int
	MemoryPerNode int64
}

// Capacity is the measured hardware available to the fleet.
type Capacity struct {
	Cores  int
	Memory int64
}

// ClusterPlan is the planner's single output.  It is computed once at
// startup, never mutated afterwards, and consumed by the launcher and the
// isolation provider when deriving per-node identity.
type ClusterPlan struct {
	NodeCount       int
	CPUPerNode      int
	MemoryPerNode   int64
	AvailableCores  int
	AvailableMemory int64

	// SharedCores is set when the host has fewer cores than nodes, in
	// which case per-node core ranges cannot be disjoint and every node
	// is given the full core set instead.
	SharedCores bool
}

// CPURange returns the inclusive core interval for the node at index.
// Ranges are disjoint across indices unless the plan fell back to shared
// cores, and are always clamped to the cores that actually exist.
func (p *ClusterPlan) CPURange(index int) (first, last int) {
	if p.SharedCores {
		return 0, p.AvailableCores - 1
	}
	first = index * p.CPUPerNode
	last = first + p.CPUPerNode - 1
	if last > p.AvailableCores-1 {
		last = p.AvailableCores - 1
	}
	if first > last {
		// Should not happen given planning clamps, but never hand
		// out an inverted range.
		first = last
	}
	return first, last
}

// Plan reconciles the declared budget against measured capacity.  Core
// over-subscription is corrected by shrinking the per-node allowance (never
// the node count); memory over-subscription is only warned about, since
// enforcement is the isolation provider's problem and that provider is
// itself best effort.  The result is deterministic for identical inputs.
func Plan(req PlanRequest, cap Capacity, logger *log.Logger) (*ClusterPlan, error) {
	if req.NodeCount < 1 {
		return nil, ErrBadNodeCount
	}
	if logger == nil {
		logger = log.Default()
	}

	plan := &ClusterPlan{
		NodeCount:       req.NodeCount,
		CPUPerNode:      req.CPUPerNode,
		MemoryPerNode:   req.MemoryPerNode,
		AvailableCores:  cap.Cores,
		AvailableMemory: cap.Memory,
	}
	if plan.CPUPerNode < 1 {
		plan.CPUPerNode = 1
	}

	if plan.NodeCount*plan.CPUPerNode > cap.Cores {
		fitted := cap.Cores / plan.NodeCount
		if fitted < 1 {
			fitted = 1
			plan.SharedCores = true
			logger.Printf("Host has %d cores for %d nodes; "+
				"all nodes will share the full core set",
				cap.Cores, plan.NodeCount)
		} else {
			logger.Printf("Requested %d cores per node exceeds "+
				"%d available; reducing to %d per node",
				req.CPUPerNode, cap.Cores, fitted)
		}
		plan.CPUPerNode = fitted
	}

	if req.MemoryPerNode > 0 && cap.Memory > 0 &&
		int64(plan.NodeCount)*req.MemoryPerNode > cap.Memory {
		logger.Printf("Declared memory %d x %d bytes exceeds %d "+
			"available; proceeding, enforcement is best effort",
			plan.NodeCount, req.MemoryPerNode, cap.Memory)
	}

	return plan, nil
}
