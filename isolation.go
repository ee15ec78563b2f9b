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

// Isolator is the best-effort resource-control binding.  One implementation
// writes real limits (cgroup v2 on Linux); the other is a no-op selected at
// startup when the facility is missing.  Isolation is a side channel, never
// a gate: callers log Isolator errors and keep going, so a degraded host
// only loses the enforcement guarantee, not availability.
type Isolator interface {
	// Enabled reports whether real enforcement is in effect.
	Enabled() bool

	// CreateScope makes (idempotently) the resource-control scope for a
	// node index and returns its name.  Scope names are unique per index
	// so restarts cannot clobber a neighbor's limits.
	CreateScope(index int) (string, error)

	// SetCPULimit caps the scope's CPU time to the given core count.
	SetCPULimit(scope string, cores int) error

	// SetMemoryLimit caps the scope's memory use in bytes.
	SetMemoryLimit(scope string, bytes int64) error

	// Attach moves a running process into the scope.  It can only be
	// called once the process exists.
	Attach(scope string, pid int) error

	// Destroy removes the scope.  Processes still inside prevent
	// removal; that error is reportable but harmless.
	Destroy(scope string) error
}

// noopIsolator is used when the resource-control facility is unavailable.
// Every operation succeeds without doing anything.
type noopIsolator struct{}

func (noopIsolator) Enabled() bool { return false }

func (noopIsolator) CreateScope(index int) (string, error) { return "", nil }

func (noopIsolator) SetCPULimit(scope string, cores int) error { return nil }

func (noopIsolator) SetMemoryLimit(scope string, b int64) error { return nil }

func (noopIsolator) Attach(scope string, pid int) error { return nil }

func (noopIsolator) Destroy(scope string) error { return nil }

// NewNoopIsolator returns an Isolator that enforces nothing.  Useful for
// tests and for platforms without a control facility.
func NewNoopIsolator() Isolator {
	return noopIsolator{}
}
