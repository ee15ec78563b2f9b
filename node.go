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
	"log"
	"path/filepath"
	"time"
)

// NodeState is the lifecycle state of one supervised node.
//
//	Pending -> Starting -> {Healthy, Unhealthy}
//	Unhealthy -> Restarting -> Starting
//	any -> Stopped
//
// A node never moves from Stopped straight to Healthy; it must pass through
// Starting so the readiness window applies to every launch.
type NodeState int

const (
	StatePending NodeState = iota
	StateStarting
	StateHealthy
	StateUnhealthy
	StateRestarting
	StateStopped
)

func (s NodeState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Ports is the set of listener ports assigned to a node.  Each is computed
// as base + index*stride, so ports never collide across indices.
type Ports struct {
	HTTP    int `json:"http"`
	RPC     int `json:"rpc"`
	Metrics int `json:"metrics"`
}

// BasePorts configures port derivation for the whole fleet.
type BasePorts struct {
	HTTP    int
	RPC     int
	Metrics int
	Stride  int
}

// PortsFor derives the port set for a node index.
func (b BasePorts) PortsFor(index int) Ports {
	off := index * b.Stride
	return Ports{
		HTTP:    b.HTTP + off,
		RPC:     b.RPC + off,
		Metrics: b.Metrics + off,
	}
}

// Layout describes where per-node storage lives.  Every node owns its
// subtrees exclusively; nothing under them is ever shared.
type Layout struct {
	DataRoot string
	LogRoot  string
	PidRoot  string
}

func (l Layout) DataDir(index int) string {
	return filepath.Join(l.DataRoot, fmt.Sprintf("node-%d", index))
}

func (l Layout) LogDir(index int) string {
	return filepath.Join(l.LogRoot, fmt.Sprintf("node-%d", index))
}

// PidFile is the durable record of the last known pid for an index.  It is
// overwritten on every (re)start.
func (l Layout) PidFile(index int) string {
	return filepath.Join(l.PidRoot, fmt.Sprintf("node-%d.pid", index))
}

// Node is one supervised worker instance.  The identity fields (index, id,
// ports, dirs, CPU range) are assigned at planning time and immutable; the
// runtime fields (state, process, restart bookkeeping) are owned by the
// fleet and guarded by the fleet lock.
type Node struct {
	fleet *Fleet

	index    int
	id       string
	ports    Ports
	cpuFirst int
	cpuLast  int
	memLimit int64
	dataDir  string
	logDir   string
	pidFile  string
	readyURL string
	scope    string // isolation scope; empty when degraded

	state         NodeState
	reason        string
	stamp         time.Time
	restarts      int
	lastRestart   time.Time
	startingSince time.Time
	strikes       int // consecutive failed readiness probes

	// Restart rate limiting, ring of recent start times.
	starts     int
	startTimes []time.Time
	rateLog    bool

	proc *workerProc

	serial int64
	mlog   *MultiLogger
	nlog   *EventLog
}

func newNode(f *Fleet, index int) *Node {
	n := &Node{
		fleet:    f,
		index:    index,
		id:       fmt.Sprintf("%s-%d", f.name, index),
		ports:    f.cfg.Ports.PortsFor(index),
		memLimit: f.plan.MemoryPerNode,
		dataDir:  f.cfg.Layout.DataDir(index),
		logDir:   f.cfg.Layout.LogDir(index),
		pidFile:  f.cfg.Layout.PidFile(index),
		state:    StatePending,
		reason:   "Planned",
		stamp:    time.Now(),
	}
	n.cpuFirst, n.cpuLast = f.plan.CPURange(index)
	n.readyURL = fmt.Sprintf("http://127.0.0.1:%d%s",
		n.ports.HTTP, f.cfg.ReadyPath)

	n.startTimes = make([]time.Time, f.cfg.RestartLimit)
	n.nlog = NewEventLog()
	n.mlog = NewMultiLogger()
	n.mlog.Logger().SetPrefix("[" + n.id + "] ")
	n.mlog.AddLogger(log.New(n.nlog, "", log.LstdFlags))
	n.mlog.AddLogger(f.getLogger())
	return n
}

// Index returns the node's ordinal in [0, NodeCount).
func (n *Node) Index() int {
	return n.index
}

// Name returns the node id, which combines the fleet name and the index
// and is unique for the supervisor's lifetime.
func (n *Node) Name() string {
	return n.id
}

// Ports returns the node's derived port assignment.
func (n *Node) Ports() Ports {
	return n.ports
}

// CPURange returns the inclusive core interval assigned to this node.
func (n *Node) CPURange() (first, last int) {
	return n.cpuFirst, n.cpuLast
}

// MemoryLimit returns the node's memory ceiling in bytes.
func (n *Node) MemoryLimit() int64 {
	return n.memLimit
}

// DataDir returns the node's exclusive data directory.
func (n *Node) DataDir() string {
	return n.dataDir
}

// LogDir returns the node's exclusive log directory.
func (n *Node) LogDir() string {
	return n.logDir
}

// State returns the node's current lifecycle state.
func (n *Node) State() NodeState {
	n.fleet.lock()
	rv := n.state
	n.fleet.unlock()
	return rv
}

// Status returns the most recent status detail and when it was recorded.
func (n *Node) Status() (string, time.Time) {
	n.fleet.lock()
	defer n.fleet.unlock()
	return n.reason, n.stamp
}

// Restarts returns how many times the node has been restarted after a
// failure.  The initial launch does not count.
func (n *Node) Restarts() int {
	n.fleet.lock()
	rv := n.restarts
	n.fleet.unlock()
	return rv
}

// Pid returns the OS pid of the running worker, or 0 when not running.
func (n *Node) Pid() int {
	n.fleet.lock()
	defer n.fleet.unlock()
	if n.proc == nil {
		return 0
	}
	return n.proc.pid()
}

// Running reports whether a live process currently backs this node.
func (n *Node) Running() bool {
	n.fleet.lock()
	defer n.fleet.unlock()
	return n.proc != nil && n.proc.alive()
}

// GetLog returns the captured supervisor log lines for this node.
func (n *Node) GetLog() []LogRecord {
	recs, _ := n.nlog.GetRecords(0)
	return recs
}

// GetLogRecords returns node log records newer than lastid.
func (n *Node) GetLogRecords(lastid int64) ([]LogRecord, int64) {
	return n.nlog.GetRecords(lastid)
}

// WatchLog blocks until the node log grows past old or expire elapses.
func (n *Node) WatchLog(old int64, expire time.Duration) int64 {
	return n.nlog.Watch(old, expire)
}

// Serial returns the node's serial, bumped on every state change.
func (n *Node) Serial() int64 {
	n.fleet.lock()
	rv := n.serial
	n.fleet.unlock()
	return rv
}

// WatchSerial blocks until the node's serial differs from old or expire
// elapses, returning the current value.
func (n *Node) WatchSerial(old int64, expire time.Duration) int64 {
	return n.fleet.watchSerial(old, &n.serial, expire)
}

func (n *Node) logf(format string, v ...interface{}) {
	n.mlog.Logger().Printf(format, v...)
}

// setState applies a state transition.  Caller must hold the fleet lock.
// Every transition is logged and bumps the fleet serial so watchers and
// the REST long-poll wake up.
func (n *Node) setState(s NodeState, detail string) {
	if n.state == s && detail == n.reason {
		return
	}
	old := n.state
	n.state = s
	n.reason = detail
	n.stamp = time.Now()
	n.serial = n.fleet.bumpSerial()
	if old != s {
		n.logf("State %s -> %s: %s", old, s, detail)
		n.fleet.metrics.Transition(n.id, old, s)
	}
}

// tooQuickly reports whether the node has restarted more than the limit
// allows within the period.  Once tripped, a full extra period must pass
// before restarts resume, halving the effective rate as a penalty.  Caller
// must hold the fleet lock.
func (n *Node) tooQuickly() error {
	limit := len(n.startTimes)
	if limit == 0 {
		return nil
	}
	if n.starts < limit {
		return nil
	}
	period := n.fleet.cfg.RestartPeriod

	idx := (n.starts - 1) % limit
	end := n.startTimes[idx]
	if time.Now().Before(end.Add(period)) {
		if !n.rateLog {
			n.logf("Node %s restarting too quickly", n.id)
		}
		n.rateLog = true
		return ErrRateLimited
	}

	if !n.rateLog {
		return nil
	}

	// In cool down from a prior trip; require a second quiet period.
	idx = (n.starts - 2) % limit
	end = n.startTimes[idx]
	if time.Now().Before(end.Add(period)) {
		return ErrRateLimited
	}

	n.rateLog = false
	return nil
}

// markStart records a start attempt for rate-limit tracking.  Caller must
// hold the fleet lock.
func (n *Node) markStart() {
	if len(n.startTimes) > 0 {
		n.startTimes[n.starts%len(n.startTimes)] = time.Now()
	}
	n.starts++
}
