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
	"runtime"

	"golang.org/x/sys/unix"
)

// MeasureCapacity reports the cores and physical memory visible to this
// process.  Memory comes from sysinfo; if that fails we report zero memory,
// which the planner treats as "unknown, do not warn".
func MeasureCapacity() Capacity {
	cap := Capacity{Cores: runtime.NumCPU()}
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err == nil {
		cap.Memory = int64(si.Totalram) * int64(si.Unit)
	}
	return cap
}
