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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package nodevisor

import (
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sys/unix"
)

// serveReady stands in for the worker's HTTP listener.  The supervisor only
// cares that something answers 200 on the node's HTTP port.
func serveReady(t *testing.T, port int) func() {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("readiness listener: %v", err)
	}
	srv := &http.Server{
		Handler: http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}),
	}
	go srv.Serve(l)
	return func() { srv.Close() }
}

func monitorConfig(t *testing.T, name string, count int, args ...string) Config {
	cfg := testConfig(t, name, count, args...)
	cfg.Interval = 30 * time.Millisecond
	cfg.ProbeTimeout = 100 * time.Millisecond
	cfg.StartWindow = 5 * time.Second
	cfg.ProbeStrikes = 1
	return cfg
}

func TestMonitorReadiness(t *testing.T) {
	Convey("A probe-passing node becomes Healthy", t, func() {
		cfg := monitorConfig(t, "mon", 1)
		f, e := New(cfg)
		So(e, ShouldBeNil)
		f.SetLogWriter(&testLog{t: t})
		Reset(func() {
			f.Shutdown("test done")
		})

		n := f.FindNode("0")
		stop := serveReady(t, n.Ports().HTTP)
		Reset(stop)

		So(f.Start(), ShouldBeNil)
		So(waitFor(3*time.Second, func() bool {
			return n.State() == StateHealthy
		}), ShouldBeTrue)
		So(f.GetInfo().Healthy, ShouldEqual, 1)
	})
}

func TestMonitorRestartsDeadNode(t *testing.T) {
	Convey("A dead worker is relaunched", t, func() {
		cfg := monitorConfig(t, "dead", 1)
		f, e := New(cfg)
		So(e, ShouldBeNil)
		f.SetLogWriter(&testLog{t: t})
		Reset(func() {
			f.Shutdown("test done")
		})

		n := f.FindNode("0")
		stop := serveReady(t, n.Ports().HTTP)
		Reset(stop)

		So(f.Start(), ShouldBeNil)
		So(waitFor(3*time.Second, func() bool {
			return n.State() == StateHealthy
		}), ShouldBeTrue)

		pid := n.Pid()
		So(unix.Kill(pid, unix.SIGKILL), ShouldBeNil)

		So(waitFor(5*time.Second, func() bool {
			return n.State() == StateHealthy && n.Pid() != pid
		}), ShouldBeTrue)
		So(n.Restarts(), ShouldBeGreaterThanOrEqualTo, 1)
	})
}

func TestMonitorRecoveryIsIsolated(t *testing.T) {
	Convey("One node's crash does not disturb its neighbors", t, func() {
		cfg := monitorConfig(t, "iso", 3)
		f, e := New(cfg)
		So(e, ShouldBeNil)
		f.SetLogWriter(&testLog{t: t})
		Reset(func() {
			f.Shutdown("test done")
		})

		nodes, _, _ := f.Nodes()
		for _, n := range nodes {
			stop := serveReady(t, n.Ports().HTTP)
			Reset(stop)
		}

		So(f.Start(), ShouldBeNil)
		So(waitFor(5*time.Second, func() bool {
			return f.GetInfo().Healthy == 3
		}), ShouldBeTrue)

		victim := nodes[1]
		pid0 := nodes[0].Pid()
		pid2 := nodes[2].Pid()
		vpid := victim.Pid()
		So(unix.Kill(vpid, unix.SIGKILL), ShouldBeNil)

		So(waitFor(5*time.Second, func() bool {
			return victim.State() == StateHealthy &&
				victim.Pid() != vpid
		}), ShouldBeTrue)

		So(nodes[0].Pid(), ShouldEqual, pid0)
		So(nodes[2].Pid(), ShouldEqual, pid2)
		So(nodes[0].Restarts(), ShouldEqual, 0)
		So(nodes[2].Restarts(), ShouldEqual, 0)
	})
}

func TestMonitorEscalation(t *testing.T) {
	Convey("Majority failure escalates to a fatal exit code", t, func() {
		cfg := monitorConfig(t, "esc", 3, "fail")
		cfg.EscalateAfter = 2
		// one start each, so failing nodes park immediately
		cfg.RestartLimit = 1
		cfg.RestartPeriod = time.Hour
		f, e := New(cfg)
		So(e, ShouldBeNil)
		f.SetLogWriter(&testLog{t: t})
		Reset(func() {
			f.Shutdown("test done")
		})

		So(f.Start(), ShouldBeNil)

		var code int
		select {
		case code = <-f.Fatal():
		case <-time.After(10 * time.Second):
			t.Fatalf("no escalation delivered")
		}
		So(code, ShouldEqual, ExitFleetFailed)
	})
}

func TestMonitorStaleObservation(t *testing.T) {
	Convey("An observation from before a restart is discarded", t, func() {
		// Interval stays at the quiesced default, so the only apply
		// is the one the test performs by hand.
		f, e := New(testConfig(t, "stale", 1))
		So(e, ShouldBeNil)
		f.SetLogWriter(&testLog{t: t})
		Reset(func() {
			f.Shutdown("test done")
		})
		So(f.Start(), ShouldBeNil)

		n := f.FindNode("0")
		r := f.monitor.probe(n)
		So(r.alive, ShouldBeTrue)

		// An administrative restart replaces the process between the
		// probe and the apply.
		So(f.RestartNode("0"), ShouldBeNil)
		pid := n.Pid()
		So(pid, ShouldBeGreaterThan, 0)

		// The old observation now reports a dead worker; it must not
		// restart the fresh one.
		r.alive = false
		f.lock()
		f.monitor.apply(r)
		f.unlock()

		So(n.Pid(), ShouldEqual, pid)
		So(n.Restarts(), ShouldEqual, 1)
		So(n.State(), ShouldEqual, StateStarting)
	})
}

func TestMonitorStoppedNodesDoNotEscalate(t *testing.T) {
	Convey("Administratively stopped nodes are not failures", t, func() {
		cfg := monitorConfig(t, "quiet", 2)
		cfg.EscalateAfter = 2
		f, e := New(cfg)
		So(e, ShouldBeNil)
		f.SetLogWriter(&testLog{t: t})
		Reset(func() {
			f.Shutdown("test done")
		})

		nodes, _, _ := f.Nodes()
		for _, n := range nodes {
			stop := serveReady(t, n.Ports().HTTP)
			Reset(stop)
		}
		So(f.Start(), ShouldBeNil)
		So(waitFor(5*time.Second, func() bool {
			return f.GetInfo().Healthy == 2
		}), ShouldBeTrue)

		So(f.StopNode("0"), ShouldBeNil)

		// give the monitor several cycles to misjudge, if it would
		time.Sleep(300 * time.Millisecond)
		select {
		case code := <-f.Fatal():
			t.Fatalf("unexpected escalation with code %d", code)
		default:
		}
		So(nodes[1].State(), ShouldEqual, StateHealthy)
	})
}
