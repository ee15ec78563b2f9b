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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// readEnvFile parses the NODE_* dump the test worker leaves in its data dir.
func readEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			m[k] = v
		}
	}
	return m, nil
}

func TestLauncherEnvContract(t *testing.T) {
	Convey("Workers receive their identity environment", t, func() {
		cfg := testConfig(t, "envc", 2, "env")
		cfg.MemoryPerNode = 512 << 20
		f, e := New(cfg)
		So(e, ShouldBeNil)
		f.SetLogWriter(&testLog{t: t})
		Reset(func() {
			f.Shutdown("test done")
		})

		So(f.Start(), ShouldBeNil)

		n := f.FindNode("1")
		So(n, ShouldNotBeNil)
		envPath := filepath.Join(n.DataDir(), "env.txt")
		So(waitFor(3*time.Second, func() bool {
			fi, err := os.Stat(envPath)
			return err == nil && fi.Size() > 0
		}), ShouldBeTrue)

		env, e := readEnvFile(envPath)
		So(e, ShouldBeNil)

		So(env["NODE_ID"], ShouldEqual, "envc-1")
		So(env["NODE_INDEX"], ShouldEqual, "1")
		So(env["NODE_COUNT"], ShouldEqual, "2")
		So(env["NODE_HTTP_PORT"], ShouldEqual,
			strconv.Itoa(n.Ports().HTTP))
		So(env["NODE_RPC_PORT"], ShouldEqual,
			strconv.Itoa(n.Ports().RPC))
		So(env["NODE_METRICS_PORT"], ShouldEqual,
			strconv.Itoa(n.Ports().Metrics))
		So(env["NODE_DATA_DIR"], ShouldEqual, n.DataDir())
		So(env["NODE_LOG_DIR"], ShouldEqual, n.LogDir())
		first, last := n.CPURange()
		So(env["NODE_CPUS"], ShouldEqual,
			fmt.Sprintf("%d-%d", first, last))
		So(env["NODE_MEMORY_LIMIT"], ShouldEqual,
			strconv.FormatInt(n.MemoryLimit(), 10))
	})
}

func TestLauncherEarlyExit(t *testing.T) {
	Convey("A worker that dies inside the liveness window fails the start",
		t, func() {
			cfg := testConfig(t, "early", 1, "fail")
			cfg.LiveCheck = 2 * time.Second
			f, e := New(cfg)
			So(e, ShouldBeNil)

			l := newLauncher(&cfg, NewNoopIsolator())
			n := f.FindNode("0")
			proc, e := l.Start(n)
			So(proc, ShouldBeNil)
			So(e, ShouldNotBeNil)
			So(e.Error(), ShouldContainSubstring,
				"worker exited during startup")
		})
}

func TestLauncherPidFile(t *testing.T) {
	Convey("The pid file tracks the launched process", t, func() {
		cfg := testConfig(t, "pidf", 1)
		f, e := New(cfg)
		So(e, ShouldBeNil)

		l := newLauncher(&cfg, NewNoopIsolator())
		n := f.FindNode("0")
		proc, e := l.Start(n)
		So(e, ShouldBeNil)
		Reset(func() {
			l.Stop(proc, time.Second)
		})

		b, e := os.ReadFile(cfg.Layout.PidFile(0))
		So(e, ShouldBeNil)
		pid, e := strconv.Atoi(strings.TrimSpace(string(b)))
		So(e, ShouldBeNil)
		So(pid, ShouldEqual, proc.pid())

		Convey("and Stop ends the process", func() {
			l.Stop(proc, time.Second)
			So(proc.alive(), ShouldBeFalse)
			So(waitFor(time.Second, func() bool {
				return processGone(pid)
			}), ShouldBeTrue)
		})
	})
}
