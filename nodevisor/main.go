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

// Command nodevisor implements a client application that communicates to
// nodevisord.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- select the daemon address, default is
//			  http://localhost:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	nodes               - list all nodes
//	status [<node> ...] - show status for the named nodes (or all)
//	info <node>         - show more detailed node info
//	plan                - show the fleet resource plan
//	health              - show the aggregate health summary
//	restart <node>      - restart the named node
//	stop <node>         - stop the named node
//	start <node>        - start the named node
//	log [<node>]        - show the node log, or the fleet log
//	ui                  - interactive monitor (default)
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nodevisor/nodevisor/rest"
)

var addr string = "http://127.0.0.1:8321"
var auth string = ""

func usage() {
	log.Fatalf("Usage: %s [-a <address>] [-u <user:pass>] <subcommand>",
		os.Args[0])
}

func showStatus(n *rest.NodeInfo) {
	d := time.Since(n.TimeStamp)
	// for printing second resolution is sufficient
	d -= d % time.Second
	fmt.Printf("%-12s %10s %10s %s\n", n.Name,
		n.State, d.String(), n.Status)
}

type sorted []*rest.NodeInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	// put broken nodes at the front where the eye lands
	af := a.State == "unhealthy" || a.State == "restarting"
	bf := b.State == "unhealthy" || b.State == "restarting"
	if af != bf {
		return af
	}
	return a.Index < b.Index
}

func sortInfos(items []*rest.NodeInfo) {
	sort.Sort(sorted(items))
}

func fatalIf(e error) {
	if e != nil {
		log.Fatalf("Failed: %v", e)
	}
}

func main() {
	flag.StringVar(&addr, "a", addr, "nodevisord address")
	flag.StringVar(&auth, "u", auth, "user:pass authentication")
	flag.Parse()

	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			log.Fatalf("Bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"ui"}
	}

	switch args[0] {
	case "nodes":
		if len(args) != 1 {
			usage()
		}
		names, e := client.Nodes()
		fatalIf(e)
		for _, name := range names {
			fmt.Println(name)
		}

	case "restart":
		if len(args) != 2 {
			usage()
		}
		fatalIf(client.RestartNode(args[1]))

	case "stop":
		if len(args) != 2 {
			usage()
		}
		fatalIf(client.StopNode(args[1]))

	case "start":
		if len(args) != 2 {
			usage()
		}
		fatalIf(client.StartNode(args[1]))

	case "log":
		name := ""
		switch len(args) {
		case 1:
		case 2:
			name = args[1]
		default:
			usage()
		}
		li, e := client.GetLog(name)
		fatalIf(e)
		for _, rec := range li.Records {
			fmt.Println(rec.Text)
		}

	case "plan":
		if len(args) != 1 {
			usage()
		}
		p, e := client.GetPlan()
		fatalIf(e)
		fmt.Printf("Nodes:      %d\n", p.NodeCount)
		fmt.Printf("CPU/node:   %d of %d cores\n",
			p.CPUPerNode, p.AvailableCores)
		fmt.Printf("Mem/node:   %d MiB of %d MiB\n",
			p.MemoryPerNode/(1024*1024),
			p.AvailableMemory/(1024*1024))
		if p.SharedCores {
			fmt.Printf("Cores are shared across all nodes\n")
		}

	case "health":
		if len(args) != 1 {
			usage()
		}
		hi, e := client.GetHealth()
		fatalIf(e)
		fmt.Printf("Healthy:    %d of %d\n", hi.Healthy, hi.Total)
		fmt.Printf("Failed:     %d\n", hi.Failed)
		fmt.Printf("Stopped:    %d\n", hi.Stopped)
		if hi.Viable {
			fmt.Printf("Fleet is viable\n")
		} else {
			fmt.Printf("Fleet is NOT viable\n")
		}

	case "info":
		if len(args) != 2 {
			usage()
		}
		n, e := client.GetNode(args[1])
		fatalIf(e)
		d := time.Since(n.TimeStamp)
		d -= d % time.Second
		fmt.Printf("Name:      %s\n", n.Name)
		fmt.Printf("Index:     %d\n", n.Index)
		fmt.Printf("State:     %s (%s)\n", n.State, d.String())
		fmt.Printf("Detail:    %s\n", n.Status)
		fmt.Printf("Pid:       %d\n", n.Pid)
		fmt.Printf("Restarts:  %d\n", n.Restarts)
		fmt.Printf("Ports:     http=%d rpc=%d metrics=%d\n",
			n.HTTPPort, n.RPCPort, n.MetrPort)
		fmt.Printf("CPUs:      %d-%d\n", n.CPUFirst, n.CPULast)
		fmt.Printf("Memory:    %d MiB\n", n.Memory/(1024*1024))
		fmt.Printf("Data:      %s\n", n.DataDir)
		fmt.Printf("Logs:      %s\n", n.LogDir)

	case "status":
		names := args[1:]
		var e error
		if len(names) == 0 {
			names, e = client.Nodes()
			fatalIf(e)
		}
		if len(names) == 0 {
			return
		}
		infos := []*rest.NodeInfo{}
		for _, n := range names {
			info, e := client.GetNode(n)
			if e == nil {
				infos = append(infos, info)
			} else {
				log.Printf("Failed: %v", e)
			}
		}
		sortInfos(infos)
		for _, info := range infos {
			showStatus(info)
		}

	case "ui":
		doUI(client, addr)

	default:
		usage()
	}
}
