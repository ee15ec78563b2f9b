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

// Package nodevisor supervises a fleet of identical worker processes
// ("nodes") on a single host.  It partitions the host's CPU cores, memory,
// ports, and storage among a configured number of node instances, launches
// them, keeps them alive with a readiness-probing monitor loop, and tears
// the whole fleet down again on request.
//
// Unlike a cluster scheduler, nodevisor never places work on other hosts,
// and unlike a container runtime it does not virtualize anything.  Each
// node is an ordinary child process with a deterministic identity derived
// from its index: three ports (http, rpc, metrics) computed by arithmetic
// offset from a base, an exclusive data and log directory, and a CPU core
// range.  Resource enforcement is best effort, through cgroups where the
// host offers them, and is never allowed to get in the way of availability.
//
// A nodevisor instance may be embedded in an existing program, or run
// standalone via the nodevisord daemon, which also exposes a small REST
// control plane for the nodevisor client utility.
package nodevisor
