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
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sys/unix"
)

// workerProc wraps one launched worker process.  A reaper goroutine owns
// the Wait; everyone else observes the done channel, so aliveness checks
// never block and never race the reaper.
type workerProc struct {
	cmd  *exec.Cmd
	done chan struct{}
	werr error    // set by the reaper before done is closed
	out  *os.File // worker log file, closed after exit
}

func (p *workerProc) reap() {
	p.werr = p.cmd.Wait()
	if p.out != nil {
		p.out.Close()
	}
	close(p.done)
}

func (p *workerProc) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *workerProc) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// exitCause describes how the process ended: a non-zero exit code reads
// differently from death by signal.  Only meaningful once alive() is false.
func (p *workerProc) exitCause() string {
	if p.werr == nil {
		return "exit status 0"
	}
	return p.werr.Error()
}

// waitExit blocks until the process exits or the duration elapses, and
// reports whether it exited.  Nodes that die early unblock immediately.
func (p *workerProc) waitExit(d time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(d):
		return false
	}
}

// terminate asks the worker's whole process group to exit.
func (p *workerProc) terminate() {
	if pid := p.pid(); pid > 0 && p.alive() {
		unix.Kill(-pid, unix.SIGTERM)
	}
}

// kill forcefully ends the worker's process group.
func (p *workerProc) kill() {
	if pid := p.pid(); pid > 0 && p.alive() {
		unix.Kill(-pid, unix.SIGKILL)
	}
}

// Launcher builds per-node worker invocations and starts them.  Identity
// derivation is pure; all the launcher adds is the exec plumbing, the pid
// file, and the best-effort isolation binding.
type Launcher struct {
	binary    string
	args      []string
	extraEnv  []string
	iso       Isolator
	nodeCount int
	liveCheck time.Duration // delay before declaring Starting complete
}

func newLauncher(cfg *Config, iso Isolator) *Launcher {
	return &Launcher{
		binary:    cfg.WorkerPath,
		args:      append([]string{}, cfg.WorkerArgs...),
		extraEnv:  append([]string{}, cfg.WorkerEnv...),
		iso:       iso,
		nodeCount: cfg.NodeCount,
		liveCheck: cfg.LiveCheck,
	}
}

// env builds the identity environment injected into a worker.  The worker
// contract is deliberately plain: flat NODE_* variables that any binary in
// any language can read.
func (l *Launcher) env(n *Node) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, l.extraEnv...)
	env = append(env,
		"NODE_ID="+n.id,
		"NODE_INDEX="+strconv.Itoa(n.index),
		"NODE_COUNT="+strconv.Itoa(l.nodeCount),
		"NODE_HTTP_PORT="+strconv.Itoa(n.ports.HTTP),
		"NODE_RPC_PORT="+strconv.Itoa(n.ports.RPC),
		"NODE_METRICS_PORT="+strconv.Itoa(n.ports.Metrics),
		"NODE_DATA_DIR="+n.dataDir,
		"NODE_LOG_DIR="+n.logDir,
		fmt.Sprintf("NODE_CPUS=%d-%d", n.cpuFirst, n.cpuLast),
	)
	if n.memLimit > 0 {
		env = append(env,
			"NODE_MEMORY_LIMIT="+strconv.FormatInt(n.memLimit, 10))
	}
	return env
}

// Start launches the worker for node n and returns its process.  The node's
// directories are created if absent (idempotent), output streams go to the
// node's log file, and the pid file is rewritten atomically.  A short
// liveness re-check catches workers that exit immediately; those come back
// as a start failure carrying the exit cause rather than as a handle.
func (l *Launcher) Start(n *Node) (*workerProc, error) {
	if l.binary == "" {
		return nil, ErrNoWorker
	}
	for _, dir := range []string{n.dataDir, n.logDir,
		filepath.Dir(n.pidFile)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	logPath := filepath.Join(n.logDir, filepath.Base(l.binary)+".log")
	out, err := os.OpenFile(logPath,
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening worker log: %w", err)
	}

	cmd := exec.Command(l.binary, l.args...)
	cmd.Dir = n.dataDir
	cmd.Env = l.env(n)
	cmd.Stdout = out
	cmd.Stderr = out
	// Own process group, so stop signals reach worker children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("starting %s: %w", l.binary, err)
	}

	proc := &workerProc{cmd: cmd, done: make(chan struct{}), out: out}
	go proc.reap()

	pid := proc.pid()
	if err := renameio.WriteFile(n.pidFile,
		[]byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		n.logf("Cannot write pid file %s: %v", n.pidFile, err)
	}

	l.bindIsolation(n, pid)

	// Re-probe liveness before declaring the start good.  A worker that
	// exits inside the window failed to start, whatever its exit code.
	if proc.waitExit(l.liveCheck) {
		return nil, fmt.Errorf("worker exited during startup (%s)",
			proc.exitCause())
	}
	return proc, nil
}

// bindIsolation applies the resource scope to a fresh process.  Failures
// here are logged and swallowed; isolation must never block a node start.
func (l *Launcher) bindIsolation(n *Node, pid int) {
	scope, err := l.iso.CreateScope(n.index)
	if err != nil {
		n.logf("Isolation scope unavailable: %v", err)
		return
	}
	n.scope = scope
	cores := n.cpuLast - n.cpuFirst + 1
	if err := l.iso.SetCPULimit(scope, cores); err != nil {
		n.logf("Cannot set CPU limit: %v", err)
	}
	if err := l.iso.SetMemoryLimit(scope, n.memLimit); err != nil {
		n.logf("Cannot set memory limit: %v", err)
	}
	if err := l.iso.Attach(scope, pid); err != nil {
		n.logf("Cannot attach to scope %s: %v", scope, err)
	}
	if err := setAffinity(pid, n.cpuFirst, n.cpuLast); err != nil {
		n.logf("Cannot set CPU affinity: %v", err)
	}
}

// Stop requests graceful termination and escalates to SIGKILL after the
// grace period.  The wait is on the process's own exit notification, so a
// fast exit returns fast.
func (l *Launcher) Stop(proc *workerProc, grace time.Duration) {
	if proc == nil || !proc.alive() {
		return
	}
	proc.terminate()
	if proc.waitExit(grace) {
		return
	}
	proc.kill()
	<-proc.done
}
