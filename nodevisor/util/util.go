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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/nodevisor/nodevisor/rest"
)

// Failed reports whether the node is in a failure state.
func Failed(n *rest.NodeInfo) bool {
	return n.State == "unhealthy" || n.State == "restarting"
}

// Stopped reports whether the node was administratively stopped.
func Stopped(n *rest.NodeInfo) bool {
	return n.State == "stopped"
}

// Healthy reports whether the node passed its last readiness probe.
func Healthy(n *rest.NodeInfo) bool {
	return n.State == "healthy"
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
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

	if Failed(a) != Failed(b) {
		// put failed items at front
		return Failed(a)
	}
	if Stopped(a) != Stopped(b) {
		// stopped nodes at the back
		return Stopped(b)
	}
	return a.Index < b.Index
}

func SortNodes(items []*rest.NodeInfo) {
	sort.Sort(sorted(items))
}
