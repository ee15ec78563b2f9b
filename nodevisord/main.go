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

// Command nodevisord supervises a fleet of identical worker processes on
// one host.  It plans resources, launches the workers with distinct ports
// and directories, monitors their health, and serves a REST control API.
//
//	nodevisord [flags] -- worker [worker args...]
package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/nodevisor/nodevisor"
	"github.com/nodevisor/nodevisor/rest"
)

var (
	addr     = "127.0.0.1:8321"
	name     = ""
	dir      = "."
	count    = 3
	cpus     = 0
	memMB    = 0
	baseHTTP = 9000
	baseRPC  = 9100
	baseMetr = 9200
	stride   = 10
	ready    = "/healthz"
	interval = 2 * time.Second
	grace    = 10 * time.Second
	auth     = ""
	watch    = false
	maxConn  = 64
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	flag.StringVar(&addr, "a", env("NODEVISOR_ADDR", addr), "listen address")
	flag.StringVar(&name, "n", env("NODEVISOR_NAME", name), "fleet name")
	flag.StringVar(&dir, "d", env("NODEVISOR_DIR", dir), "root directory for node data, logs and pids")
	flag.IntVar(&count, "count", count, "number of nodes")
	flag.IntVar(&cpus, "cpus", cpus, "CPU cores per node (0 divides the host)")
	flag.IntVar(&memMB, "mem", memMB, "memory per node in MiB (0 divides the host)")
	flag.IntVar(&baseHTTP, "http", baseHTTP, "base HTTP port")
	flag.IntVar(&baseRPC, "rpc", baseRPC, "base RPC port")
	flag.IntVar(&baseMetr, "metrics", baseMetr, "base metrics port")
	flag.IntVar(&stride, "stride", stride, "port stride between nodes")
	flag.StringVar(&ready, "ready", ready, "readiness probe path")
	flag.DurationVar(&interval, "interval", interval, "health check interval")
	flag.DurationVar(&grace, "grace", grace, "graceful stop allowance")
	flag.StringVar(&auth, "auth", env("NODEVISOR_AUTH", auth), "user:pass for the control API")
	flag.BoolVar(&watch, "watch", watch, "rolling restart when the worker binary changes")
	flag.IntVar(&maxConn, "maxconn", maxConn, "control API connection limit")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatalf("Usage: nodevisord [flags] -- worker [args...]")
	}
	worker, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		log.Fatalf("Bad worker path: %v", err)
	}

	metrics := nodevisor.NewPromMetrics("nodevisor")

	f, err := nodevisor.New(nodevisor.Config{
		Name:          name,
		NodeCount:     count,
		CPUPerNode:    cpus,
		MemoryPerNode: int64(memMB) * 1024 * 1024,
		Ports: nodevisor.BasePorts{
			HTTP:    baseHTTP,
			RPC:     baseRPC,
			Metrics: baseMetr,
			Stride:  stride,
		},
		Layout: nodevisor.Layout{
			DataRoot: filepath.Join(dir, "data"),
			LogRoot:  filepath.Join(dir, "log"),
			PidRoot:  filepath.Join(dir, "run"),
		},
		WorkerPath: worker,
		WorkerArgs: flag.Args()[1:],
		ReadyPath:  ready,
		Interval:   interval,
		Grace:      grace,
		Metrics:    metrics,
	})
	if err != nil {
		log.Fatalf("Failed to build fleet: %v", err)
	}

	h := rest.NewHandler(f)
	if auth != "" {
		parts := strings.SplitN(auth, ":", 2)
		if len(parts) != 2 {
			log.Fatalf("Bad -auth, want user:pass")
		}
		h.SetAuth(parts[0], parts[1])
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", h)

	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}
	l = netutil.LimitListener(l, maxConn)
	go func() {
		if err := http.Serve(l, mux); err != nil {
			log.Printf("Control API: %v", err)
		}
	}()

	if err := f.Start(); err != nil {
		log.Fatalf("Failed to start fleet: %v", err)
	}

	if watch {
		if _, err := f.WatchBinary(); err != nil {
			log.Printf("Cannot watch %s: %v", worker, err)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	code := nodevisor.ExitClean
	select {
	case sig := <-sigs:
		f.Shutdown(sig.String())
	case code = <-f.Fatal():
		f.Shutdown("fleet non-viable")
	}
	l.Close()
	os.Exit(code)
}
