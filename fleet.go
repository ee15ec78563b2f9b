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
	"os"
	"strconv"
	"sync"
	"time"
)

// Exit codes reported through Fatal and used by nodevisord.
const (
	// ExitClean is used after an external termination request.
	ExitClean = 0
	// ExitFleetFailed is used when the monitor declares the fleet
	// non-viable.  It is deliberately distinct from per-node restarts,
	// which never terminate the supervisor.
	ExitFleetFailed = 2
)

// Config carries everything a fleet needs.  Zero values get sensible
// defaults; only NodeCount, WorkerPath, Ports and Layout are genuinely the
// operator's problem.
type Config struct {
	Name          string
	NodeCount     int
	CPUPerNode    int
	MemoryPerNode int64
	Ports         BasePorts
	Layout        Layout
	WorkerPath    string
	WorkerArgs    []string
	WorkerEnv     []string

	// ReadyPath is the HTTP path probed on each node's HTTP port.
	ReadyPath string

	Interval     time.Duration // monitor polling interval
	ProbeTimeout time.Duration // per-node readiness probe budget
	StartWindow  time.Duration // readiness deadline after a start
	Cooldown     time.Duration // pause before relaunching a dead node
	Grace        time.Duration // graceful stop allowance
	Stagger      time.Duration // delay between successive node starts
	LiveCheck    time.Duration // early-exit re-probe after launch

	ProbeStrikes  int // readiness failures tolerated while healthy
	EscalateAfter int // consecutive majority-failure cycles before abort

	// RestartLimit bounds how many restarts one node is allowed within
	// a RestartPeriod window before it is parked.
	RestartLimit  int
	RestartPeriod time.Duration

	// Capacity overrides hardware measurement; nil measures the host.
	Capacity *Capacity
	// Isolator overrides detection; nil probes the host.
	Isolator Isolator
	// Metrics receives fleet events; nil discards them.
	Metrics MetricsCollector
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "nodevisor"
		}
		c.Name = host
	}
	if c.ReadyPath == "" {
		c.ReadyPath = "/healthz"
	}
	if c.Ports.Stride == 0 {
		c.Ports.Stride = 10
	}
	if c.Interval == 0 {
		c.Interval = 2 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = time.Second
	}
	if c.StartWindow == 0 {
		c.StartWindow = 30 * time.Second
	}
	if c.Cooldown == 0 {
		c.Cooldown = time.Second
	}
	if c.Grace == 0 {
		c.Grace = 10 * time.Second
	}
	if c.Stagger == 0 {
		c.Stagger = time.Second
	}
	if c.LiveCheck == 0 {
		c.LiveCheck = 2 * time.Second
	}
	if c.ProbeStrikes == 0 {
		c.ProbeStrikes = 2
	}
	if c.EscalateAfter == 0 {
		c.EscalateAfter = 3
	}
	if c.RestartLimit == 0 {
		c.RestartLimit = 10
	}
	if c.RestartPeriod == 0 {
		c.RestartPeriod = time.Minute
	}
	if c.Metrics == nil {
		c.Metrics = NewNoopMetrics()
	}
}

// FleetInfo is a consistent snapshot of top-level fleet state.
type FleetInfo struct {
	Name       string
	Serial     int64
	NodeCount  int
	Healthy    int
	Isolation  bool
	CreateTime time.Time
	UpdateTime time.Time
}

// Fleet supervises the node set.  All node tables and transitions are
// guarded by the fleet lock; the monitor is the only steady-state writer,
// so in practice this is a single control thread with observers.
type Fleet struct {
	name     string
	cfg      *Config
	plan     *ClusterPlan
	iso      Isolator
	launcher *Launcher
	monitor  *monitor
	metrics  MetricsCollector
	nodes    []*Node

	logger     *log.Logger
	elog       *EventLog
	mlog       *MultiLogger
	serial     int64
	listSerial int64
	listStamp  time.Time
	createTime time.Time
	updateTime time.Time

	fatal    chan int
	started  bool
	stopped  bool
	mx       sync.Mutex
	cvs      map[*sync.Cond]bool
}

// New validates the configuration, plans the cluster against measured (or
// injected) capacity, selects the isolation provider, and builds the node
// table.  Nothing is launched until Start.
func New(cfg Config) (*Fleet, error) {
	cfg.setDefaults()
	if cfg.NodeCount < 1 {
		return nil, ErrBadNodeCount
	}
	if cfg.WorkerPath == "" {
		return nil, ErrNoWorker
	}
	if cfg.Ports.HTTP <= 0 || cfg.Ports.RPC <= 0 ||
		cfg.Ports.Metrics <= 0 || cfg.Ports.Stride <= 0 {
		return nil, ErrBadPorts
	}

	f := &Fleet{
		name:    cfg.Name,
		cfg:     &cfg,
		metrics: cfg.Metrics,
		fatal:   make(chan int, 1),
		cvs:     make(map[*sync.Cond]bool),
	}
	// Serial numbers originate from the clock so clients that cache
	// across a supervisor restart are forced to refresh.
	f.serial = time.Now().UnixNano()
	f.createTime = time.Now()
	f.updateTime = f.createTime
	f.mlog = NewMultiLogger()
	f.elog = NewEventLog()
	f.mlog.AddLogger(log.New(f.elog, "", 0))
	f.logger = log.New(os.Stderr, "", log.LstdFlags)
	f.mlog.AddLogger(f.logger)

	capacity := MeasureCapacity()
	if cfg.Capacity != nil {
		capacity = *cfg.Capacity
	}
	plan, err := Plan(PlanRequest{
		NodeCount:     cfg.NodeCount,
		CPUPerNode:    cfg.CPUPerNode,
		MemoryPerNode: cfg.MemoryPerNode,
	}, capacity, f.mlog.Logger())
	if err != nil {
		return nil, err
	}
	f.plan = plan

	f.iso = cfg.Isolator
	if f.iso == nil {
		f.iso = DetectIsolator(f.name, f.mlog.Logger())
	}
	f.launcher = newLauncher(&cfg, f.iso)

	f.nodes = make([]*Node, plan.NodeCount)
	for i := range f.nodes {
		f.nodes[i] = newNode(f, i)
	}
	f.monitor = newMonitor(f)
	return f, nil
}

func (f *Fleet) lock() {
	f.mx.Lock()
}

func (f *Fleet) unlock() {
	f.mx.Unlock()
}

func (f *Fleet) wakeUp() {
	// Lock must be held, or woken goroutines can miss the new serial.
	for cv := range f.cvs {
		cv.Broadcast()
	}
}

// bumpSerial increments the serial and notifies watchers, returning the
// new value for storage on nodes.  Call with the lock held.
func (f *Fleet) bumpSerial() int64 {
	f.updateTime = time.Now()
	f.serial++
	rv := f.serial
	f.wakeUp()
	return rv
}

// watchSerial blocks until *src differs from old or expire elapses,
// returning the current value.  Zero expire polls.
func (f *Fleet) watchSerial(old int64, src *int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&f.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			f.lock()
			expired = true
			cv.Broadcast()
			f.unlock()
		})
	} else {
		expired = true
	}

	f.lock()
	f.cvs[cv] = true
	for {
		rv = *src
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(f.cvs, cv)
	f.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// WatchSerial monitors for any fleet state change.
func (f *Fleet) WatchSerial(old int64, expire time.Duration) int64 {
	return f.watchSerial(old, &f.serial, expire)
}

// WatchNodes monitors for a change in the node list.  The list only
// changes at startup, but clients use the same long-poll path either way.
func (f *Fleet) WatchNodes(old int64, expire time.Duration) int64 {
	return f.watchSerial(old, &f.listSerial, expire)
}

// Serial returns the global serial, incremented on every state change.
func (f *Fleet) Serial() int64 {
	f.lock()
	rv := f.serial
	f.unlock()
	return rv
}

// Name returns the fleet name; node ids derive from it.
func (f *Fleet) Name() string {
	return f.name
}

// Plan returns the immutable cluster plan computed at construction.
func (f *Fleet) Plan() ClusterPlan {
	return *f.plan
}

// IsolationEnabled reports whether real resource enforcement is active.
func (f *Fleet) IsolationEnabled() bool {
	return f.iso.Enabled()
}

// GetInfo returns a consistent top-level snapshot.
func (f *Fleet) GetInfo() *FleetInfo {
	f.lock()
	info := &FleetInfo{
		Name:       f.name,
		Serial:     f.serial,
		NodeCount:  len(f.nodes),
		Isolation:  f.iso.Enabled(),
		CreateTime: f.createTime,
		UpdateTime: f.updateTime,
	}
	for _, n := range f.nodes {
		if n.state == StateHealthy {
			info.Healthy++
		}
	}
	f.unlock()
	return info
}

// Nodes returns the node table along with the list serial and stamp.
// Order is by index.
func (f *Fleet) Nodes() ([]*Node, int64, time.Time) {
	f.lock()
	rv := append([]*Node{}, f.nodes...)
	sn := f.listSerial
	ts := f.listStamp
	f.unlock()
	return rv, sn, ts
}

// FindNode resolves a node by full id ("myhost-2"), or by bare index
// ("2").  Returns nil when no node matches.
func (f *Fleet) FindNode(name string) *Node {
	f.lock()
	defer f.unlock()
	for _, n := range f.nodes {
		if n.id == name {
			return n
		}
	}
	if idx, err := strconv.Atoi(name); err == nil &&
		idx >= 0 && idx < len(f.nodes) {
		return f.nodes[idx]
	}
	return nil
}

// SetLogger replaces the default stderr logger.
func (f *Fleet) SetLogger(l *log.Logger) {
	if f.logger != nil {
		f.mlog.DelLogger(f.logger)
	}
	f.logger = l
	f.mlog.AddLogger(l)
}

// SetLogWriter is a convenience for SetLogger with a bare writer.
func (f *Fleet) SetLogWriter(w io.Writer) {
	f.SetLogger(log.New(w, "", log.LstdFlags))
}

// getLogger hands each node a logger that feeds the fleet-wide fan-out.
func (f *Fleet) getLogger() *log.Logger {
	return log.New(f.mlog, "", 0)
}

func (f *Fleet) logf(format string, v ...interface{}) {
	f.mlog.Logger().Printf(format, v...)
}

// GetLog returns fleet-wide log records newer than lastid.
func (f *Fleet) GetLog(lastid int64) ([]LogRecord, int64) {
	return f.elog.GetRecords(lastid)
}

// WatchLog blocks until the fleet log grows past old or expire elapses.
func (f *Fleet) WatchLog(old int64, expire time.Duration) int64 {
	return f.elog.Watch(old, expire)
}

// Fatal delivers the exit code when the monitor declares the fleet
// non-viable.  The daemon selects on this alongside its signal channel.
func (f *Fleet) Fatal() <-chan int {
	return f.fatal
}

// Start launches every node with the configured stagger, then hands
// steady-state control to the monitor.  The stagger avoids a thundering
// herd on shared startup resources; it is policy, not correctness.
func (f *Fleet) Start() error {
	f.lock()
	if f.started {
		f.unlock()
		return ErrIsRunning
	}
	if f.stopped {
		f.unlock()
		return ErrFleetDown
	}
	f.started = true
	f.listSerial = f.bumpSerial()
	f.listStamp = time.Now()
	f.unlock()

	f.logf("*** Starting fleet %s: %d nodes ***", f.name, len(f.nodes))
	f.banner()

	for i, n := range f.nodes {
		if i > 0 {
			time.Sleep(f.cfg.Stagger)
		}
		f.lock()
		if err := f.startNode(n, "Initial launch"); err != nil {
			// Startup failure takes the same road as a crash:
			// the monitor owns the restart path.
			f.logf("Node %s failed to launch: %v", n.id, err)
		}
		f.unlock()
	}

	f.monitor.start()
	return nil
}

// banner logs the human-readable startup summary: plan, port map, and
// isolation status.
func (f *Fleet) banner() {
	p := f.plan
	f.logf("Plan: %d nodes, %d cores/node (of %d), %d MiB/node",
		p.NodeCount, p.CPUPerNode, p.AvailableCores,
		p.MemoryPerNode/(1024*1024))
	if p.SharedCores {
		f.logf("Cores are shared across all nodes (host under-provisioned)")
	}
	iso := "enabled"
	if !f.iso.Enabled() {
		iso = "degraded (no resource control)"
	}
	f.logf("Isolation: %s", iso)
	for _, n := range f.nodes {
		f.logf("  %s http=%d rpc=%d metrics=%d cpus=%d-%d data=%s",
			n.id, n.ports.HTTP, n.ports.RPC, n.ports.Metrics,
			n.cpuFirst, n.cpuLast, n.dataDir)
	}
}

// startNode performs one launch attempt.  Caller must hold the fleet lock.
func (f *Fleet) startNode(n *Node, detail string) error {
	if n.proc != nil && n.proc.alive() {
		return ErrIsRunning
	}
	if err := n.tooQuickly(); err != nil {
		n.setState(StateUnhealthy, "Restart rate limited")
		return err
	}
	n.markStart()
	n.setState(StateStarting, detail)
	n.startingSince = time.Now()
	n.strikes = 0

	proc, err := f.launcher.Start(n)
	if err != nil {
		n.proc = nil
		n.setState(StateUnhealthy, "Start failed: "+err.Error())
		return err
	}
	n.proc = proc
	n.logf("Launched pid %d", proc.pid())
	return nil
}

// restartNode drives Unhealthy -> Restarting -> Starting for one node:
// kill any leftover handle, cool down, relaunch on the same dataDir.
// Caller must hold the fleet lock; the lock is dropped across the
// cooldown so observers and other control paths are not starved.
func (f *Fleet) restartNode(n *Node, detail string) error {
	n.setState(StateRestarting, detail)
	proc := n.proc
	n.proc = nil
	f.unlock()

	if proc != nil && proc.alive() {
		proc.kill()
		<-proc.done
	}
	time.Sleep(f.cfg.Cooldown)

	f.lock()
	if f.stopped || n.state == StateStopped {
		return ErrStopped
	}
	if err := f.startNode(n, detail); err != nil {
		return err
	}
	n.restarts++
	n.lastRestart = time.Now()
	f.metrics.Restart(n.id)
	return nil
}

// RestartNode is the administrative restart: it clears the rate-limit
// history first, the way an operator expects a manual kick to just work.
func (f *Fleet) RestartNode(name string) error {
	n := f.FindNode(name)
	if n == nil {
		return ErrNoSuchNode
	}
	f.lock()
	defer f.unlock()
	if f.stopped {
		return ErrFleetDown
	}
	n.starts = 0
	n.rateLog = false
	n.logf("Administrative restart")
	return f.restartNode(n, "Restart requested")
}

// StopNode administratively stops one node.  A stopped node is skipped by
// the monitor until started again.
func (f *Fleet) StopNode(name string) error {
	n := f.FindNode(name)
	if n == nil {
		return ErrNoSuchNode
	}
	f.lock()
	if f.stopped {
		f.unlock()
		return ErrFleetDown
	}
	if n.state == StateStopped {
		f.unlock()
		return nil
	}
	proc := n.proc
	n.proc = nil
	n.setState(StateStopped, "Stop requested")
	f.unlock()

	f.launcher.Stop(proc, f.cfg.Grace)
	return nil
}

// StartNode brings an administratively stopped node back.
func (f *Fleet) StartNode(name string) error {
	n := f.FindNode(name)
	if n == nil {
		return ErrNoSuchNode
	}
	f.lock()
	defer f.unlock()
	if f.stopped {
		return ErrFleetDown
	}
	if n.state != StateStopped {
		return ErrIsRunning
	}
	n.starts = 0
	n.rateLog = false
	return f.startNode(n, "Start requested")
}

// escalate is called by the monitor when the fleet is non-viable.  The
// exit code is delivered once; the daemon performs the actual Shutdown.
func (f *Fleet) escalate(code int, cause string) {
	f.logf("*** Fleet %s non-viable: %s ***", f.name, cause)
	select {
	case f.fatal <- code:
	default:
	}
}

// Shutdown stops the monitor and then every node: graceful termination,
// a polled bounded grace wait, then force-kill for stragglers.  It only
// returns once every handle is confirmed gone, so no orphaned workers can
// survive the supervisor.  Cause is recorded in the final summary line.
func (f *Fleet) Shutdown(cause string) {
	f.lock()
	if f.stopped {
		f.unlock()
		return
	}
	f.stopped = true
	f.unlock()

	f.monitor.stop()

	f.lock()
	type victim struct {
		n    *Node
		proc *workerProc
	}
	victims := make([]victim, 0, len(f.nodes))
	for _, n := range f.nodes {
		if n.proc != nil {
			victims = append(victims, victim{n, n.proc})
			n.proc = nil
		}
		n.setState(StateStopped, "Shutting down: "+cause)
	}
	f.unlock()

	var wg sync.WaitGroup
	for _, v := range victims {
		wg.Add(1)
		go func(v victim) {
			defer wg.Done()
			f.launcher.Stop(v.proc, f.cfg.Grace)
		}(v)
	}
	wg.Wait()

	f.logf("*** Fleet %s shut down: %s ***", f.name, cause)
}
