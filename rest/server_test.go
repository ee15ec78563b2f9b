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

package rest

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/nodevisor/nodevisor"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// testFleet builds a small fleet with the monitor quiesced, so state only
// moves when the test says so.
func testFleet(t *testing.T, name string, count int) *nodevisor.Fleet {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := t.TempDir()
	f, err := nodevisor.New(nodevisor.Config{
		Name:       name,
		NodeCount:  count,
		CPUPerNode: 1,
		Ports: nodevisor.BasePorts{
			HTTP:    freePort(t),
			RPC:     freePort(t),
			Metrics: freePort(t),
			Stride:  7,
		},
		Layout: nodevisor.Layout{
			DataRoot: filepath.Join(dir, "data"),
			LogRoot:  filepath.Join(dir, "log"),
			PidRoot:  filepath.Join(dir, "run"),
		},
		WorkerPath: filepath.Join(wd, "..", "worker_test.sh"),
		Interval:   time.Hour,
		LiveCheck:  25 * time.Millisecond,
		Stagger:    time.Millisecond,
		Cooldown:   time.Millisecond,
		Grace:      2 * time.Second,
		Capacity:   &nodevisor.Capacity{Cores: 4, Memory: 4 << 30},
		Isolator:   nodevisor.NewNoopIsolator(),
	})
	if err != nil {
		t.Fatalf("new fleet: %v", err)
	}
	return f
}

func TestRestRoundTrip(t *testing.T) {
	Convey("Given a fleet behind the REST handler", t, func() {
		f := testFleet(t, "rest", 2)
		So(f.Start(), ShouldBeNil)
		Reset(func() {
			f.Shutdown("test done")
		})

		h := NewHandler(f)
		srv := httptest.NewServer(h)
		Reset(srv.Close)
		c := NewClient(nil, srv.URL)

		Convey("GetFleet reports the fleet shape", func() {
			info, e := c.GetFleet()
			So(e, ShouldBeNil)
			So(info.Name, ShouldEqual, "rest")
			So(info.NodeCount, ShouldEqual, 2)
		})

		Convey("Nodes lists every node by name", func() {
			names, e := c.Nodes()
			So(e, ShouldBeNil)
			So(names, ShouldResemble, []string{"rest-0", "rest-1"})
		})

		Convey("GetNode returns identity and placement", func() {
			n, e := c.GetNode("rest-1")
			So(e, ShouldBeNil)
			So(n.Index, ShouldEqual, 1)
			So(n.State, ShouldEqual, "starting")
			So(n.HTTPPort, ShouldNotEqual, 0)
			So(n.HTTPPort, ShouldNotEqual, n.RPCPort)
			So(n.DataDir, ShouldContainSubstring, "node-1")
		})

		Convey("GetPlan mirrors the computed plan", func() {
			p, e := c.GetPlan()
			So(e, ShouldBeNil)
			So(p.NodeCount, ShouldEqual, 2)
			So(p.AvailableCores, ShouldEqual, 4)
			So(p.SharedCores, ShouldBeFalse)
		})

		Convey("GetHealth counts running nodes", func() {
			v, e := c.GetHealth()
			So(e, ShouldBeNil)
			So(v.Total, ShouldEqual, 2)
			So(v.Stopped, ShouldEqual, 0)
		})

		Convey("Stop and start round trip through POST", func() {
			So(c.StopNode("rest-0"), ShouldBeNil)
			n, e := c.GetNode("rest-0")
			So(e, ShouldBeNil)
			So(n.State, ShouldEqual, "stopped")

			v, e := c.GetHealth()
			So(e, ShouldBeNil)
			So(v.Stopped, ShouldEqual, 1)
			So(v.Total, ShouldEqual, 1)

			So(c.StartNode("rest-0"), ShouldBeNil)
			n, e = c.GetNode("rest-0")
			So(e, ShouldBeNil)
			So(n.State, ShouldEqual, "starting")
		})

		Convey("Actions on unknown nodes return 404", func() {
			e := c.RestartNode("bogus-9")
			So(e, ShouldNotBeNil)
			re, ok := e.(*Error)
			So(ok, ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("The fleet log is served with records", func() {
			l, e := c.GetLog("")
			So(e, ShouldBeNil)
			So(len(l.Records), ShouldBeGreaterThan, 0)
		})

		Convey("Unchanged resources yield 304 on a conditional get", func() {
			res, e := http.Get(srv.URL + "/fleet")
			So(e, ShouldBeNil)
			res.Body.Close()
			etag := res.Header.Get("Etag")
			So(etag, ShouldNotBeEmpty)

			req, e := http.NewRequest("GET", srv.URL+"/fleet", nil)
			So(e, ShouldBeNil)
			req.Header.Set("If-None-Match", etag)
			res, e = http.DefaultClient.Do(req)
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotModified)
		})

		Convey("Basic auth rejects and admits", func() {
			h.SetAuth("admin", "sekrit")

			_, e := c.GetFleet()
			So(e, ShouldNotBeNil)
			re, ok := e.(*Error)
			So(ok, ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusUnauthorized)

			c.SetAuth("admin", "sekrit")
			info, e := c.GetFleet()
			So(e, ShouldBeNil)
			So(info.Name, ShouldEqual, "rest")
		})
	})
}
