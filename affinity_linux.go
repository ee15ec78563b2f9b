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
	"golang.org/x/sys/unix"
)

// setAffinity pins a process to the inclusive core range.  Like the rest of
// the isolation path this is advisory; callers log and ignore failures.
func setAffinity(pid, first, last int) error {
	var set unix.CPUSet
	for c := first; c <= last; c++ {
		set.Set(c)
	}
	return unix.SchedSetaffinity(pid, &set)
}
