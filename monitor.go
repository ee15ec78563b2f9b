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
	"context"
	"fmt"
	"net/http"
	"time"

	"vawter.tech/stopper"
)

// monitor owns the steady-state health loop.  It is the only writer of
// node state once startup completes; everything else (REST, CLI) only
// requests transitions through the fleet, which reuses the same paths.
type monitor struct {
	fleet  *Fleet
	client *http.Client
	sctx   *stopper.Context

	// badCycles counts consecutive cycles where a majority of nodes was
	// failed.  One good cycle resets it.
	badCycles int
}

func newMonitor(f *Fleet) *monitor {
	return &monitor{
		fleet: f,
		client: &http.Client{
			Timeout: f.cfg.ProbeTimeout,
		},
	}
}

func (m *monitor) start() {
	m.sctx = stopper.WithContext(context.Background())
	m.sctx.Go(func(sctx *stopper.Context) error {
		m.run(sctx)
		return nil
	})
}

// stop halts the loop and waits for an in-flight cycle to finish, so no
// restart races a fleet shutdown.
func (m *monitor) stop() {
	if m.sctx == nil {
		return
	}
	m.sctx.Stop(100 * time.Millisecond)
	_ = m.sctx.Wait()
}

func (m *monitor) run(sctx *stopper.Context) {
	ticker := time.NewTicker(m.fleet.cfg.Interval)
	defer ticker.Stop()

	for !sctx.IsStopping() {
		select {
		case <-sctx.Stopping():
			return
		case <-ticker.C:
			m.cycle(sctx)
		}
	}
}

// probeResult is one node's observation for a cycle.  proc is the handle
// the observation was made against; if the node's handle has changed by
// apply time, the observation is stale.
type probeResult struct {
	node  *Node
	proc  *workerProc
	alive bool
	ready bool
}

// cycle observes every node, applies transitions, and only then judges
// fleet viability.  Escalation is evaluated strictly after all per-node
// updates so a cycle's view is consistent.
func (m *monitor) cycle(sctx *stopper.Context) {
	f := m.fleet

	f.lock()
	nodes := append([]*Node{}, f.nodes...)
	f.unlock()

	results := make([]probeResult, 0, len(nodes))
	for _, n := range nodes {
		if sctx.IsStopping() {
			return
		}
		results = append(results, m.probe(n))
	}

	f.lock()
	if f.stopped {
		f.unlock()
		return
	}
	for _, r := range results {
		m.apply(r)
	}

	healthy, failed, total := 0, 0, 0
	for _, n := range f.nodes {
		if n.state == StateStopped {
			continue
		}
		total++
		switch n.state {
		case StateHealthy:
			healthy++
		case StateUnhealthy, StateRestarting:
			failed++
		}
	}
	f.metrics.SetHealthy(healthy, total)

	if total > 0 && failed > total/2 {
		m.badCycles++
		f.metrics.Escalation(failed)
		f.logf("Majority failure: %d of %d nodes failed (%d consecutive)",
			failed, total, m.badCycles)
	} else {
		m.badCycles = 0
	}
	escalate := m.badCycles >= f.cfg.EscalateAfter
	f.unlock()

	if escalate {
		f.escalate(ExitFleetFailed, fmt.Sprintf(
			"majority of nodes failed for %d consecutive cycles",
			m.badCycles))
	}
}

// probe observes a single node without the fleet lock held: the HTTP
// round trip must never stall other control paths.
func (m *monitor) probe(n *Node) probeResult {
	f := m.fleet

	f.lock()
	state := n.state
	proc := n.proc
	url := n.readyURL
	f.unlock()

	r := probeResult{node: n, proc: proc}
	switch state {
	case StatePending, StateStopped:
		return r
	}
	if proc == nil || !proc.alive() {
		return r
	}
	r.alive = true

	begin := time.Now()
	resp, err := m.client.Get(url)
	if err == nil {
		resp.Body.Close()
		r.ready = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	f.metrics.ProbeDuration(n.id, time.Since(begin), r.ready)
	return r
}

// apply folds one observation into the node's state machine.  Caller must
// hold the fleet lock; restarts drop and reacquire it.
func (m *monitor) apply(r probeResult) {
	f := m.fleet
	n := r.node

	// The probe ran without the lock; an administrative restart landing
	// in between leaves a fresh process this observation knows nothing
	// about.  Never act on a stale handle.
	if n.proc != r.proc {
		return
	}

	switch n.state {
	case StatePending, StateStopped:
		return

	case StateStarting:
		if !r.alive {
			n.logf("Worker exited during startup")
			m.restart(n, "Worker exited during startup")
			return
		}
		if r.ready {
			n.strikes = 0
			n.setState(StateHealthy, "Readiness probe passed")
			return
		}
		if time.Since(n.startingSince) > f.cfg.StartWindow {
			n.setState(StateUnhealthy, "Readiness deadline exceeded")
			m.restart(n, "Readiness deadline exceeded")
		}

	case StateHealthy:
		if !r.alive {
			cause := "Worker exited"
			if n.proc != nil {
				cause = "Worker exited: " + n.proc.exitCause()
			}
			n.setState(StateUnhealthy, cause)
			m.restart(n, cause)
			return
		}
		if r.ready {
			n.strikes = 0
			return
		}
		// Live process, failed probe.  Tolerate a few before acting;
		// transient probe failures should not bounce a working node.
		n.strikes++
		if n.strikes > f.cfg.ProbeStrikes {
			n.setState(StateUnhealthy, "Readiness probe failing")
			m.restart(n, "Readiness probe failing")
		}

	case StateUnhealthy:
		// Parked here by the rate limiter or a failed launch.  Retry
		// each cycle; tooQuickly gates the actual attempt.
		m.restart(n, n.reason)

	case StateRestarting:
		// A restart is in flight on this cycle's stack; nothing to do.
	}
}

// restart drives the node through the restart path, tolerating the rate
// limiter.  Caller must hold the fleet lock.
func (m *monitor) restart(n *Node, detail string) {
	if err := m.fleet.restartNode(n, detail); err != nil {
		switch err {
		case ErrRateLimited, ErrStopped:
		default:
			n.logf("Restart failed: %v", err)
		}
	}
}
