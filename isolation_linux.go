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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// cgroupRoot is the unified hierarchy mount point.  Overridable for tests.
var cgroupRoot = "/sys/fs/cgroup"

// cpuPeriodUsec is the scheduling period used for cpu.max quotas.
const cpuPeriodUsec = 100000

// cgroupIsolator binds node scopes to cgroup v2.  Scopes live under a
// fleet-named parent group so a host can run several supervisors without
// name collisions.
type cgroupIsolator struct {
	dir    string // parent group for this fleet
	fleet  string
	logger *log.Logger
}

// DetectIsolator probes for a usable cgroup v2 hierarchy.  If the probe
// fails, a single warning is logged and the no-op provider is returned;
// the fleet stays fully functional, only losing enforcement.
func DetectIsolator(fleet string, logger *log.Logger) Isolator {
	if logger == nil {
		logger = log.Default()
	}
	if _, err := os.Stat(filepath.Join(cgroupRoot, "cgroup.controllers")); err != nil {
		logger.Printf("Resource control unavailable (%v); "+
			"running without isolation", err)
		return noopIsolator{}
	}
	dir := filepath.Join(cgroupRoot, fleet)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Printf("Cannot create isolation group %s (%v); "+
			"running without isolation", dir, err)
		return noopIsolator{}
	}
	return &cgroupIsolator{dir: dir, fleet: fleet, logger: logger}
}

func (c *cgroupIsolator) Enabled() bool {
	return true
}

func (c *cgroupIsolator) scopeDir(scope string) string {
	return filepath.Join(c.dir, scope)
}

func (c *cgroupIsolator) CreateScope(index int) (string, error) {
	scope := fmt.Sprintf("%s-node%d.scope", c.fleet, index)
	// MkdirAll keeps this idempotent across restarts.
	if err := os.MkdirAll(c.scopeDir(scope), 0755); err != nil {
		return "", fmt.Errorf("creating scope %s: %w", scope, err)
	}
	return scope, nil
}

func (c *cgroupIsolator) SetCPULimit(scope string, cores int) error {
	if cores < 1 {
		cores = 1
	}
	val := fmt.Sprintf("%d %d", cores*cpuPeriodUsec, cpuPeriodUsec)
	return c.write(scope, "cpu.max", val)
}

func (c *cgroupIsolator) SetMemoryLimit(scope string, bytes int64) error {
	if bytes <= 0 {
		// No declared budget means no ceiling.
		return nil
	}
	return c.write(scope, "memory.max", strconv.FormatInt(bytes, 10))
}

func (c *cgroupIsolator) Attach(scope string, pid int) error {
	return c.write(scope, "cgroup.procs", strconv.Itoa(pid))
}

func (c *cgroupIsolator) Destroy(scope string) error {
	return os.Remove(c.scopeDir(scope))
}

func (c *cgroupIsolator) write(scope, ctl, val string) error {
	p := filepath.Join(c.scopeDir(scope), ctl)
	if err := os.WriteFile(p, []byte(val), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}
