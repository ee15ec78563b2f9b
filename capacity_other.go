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

//go:build !linux

package nodevisor

import (
	"runtime"
)

// MeasureCapacity reports visible cores.  Total memory is not readily
// portable off Linux, so it is reported as unknown and the planner skips
// the memory budget check.
func MeasureCapacity() Capacity {
	return Capacity{Cores: runtime.NumCPU()}
}
