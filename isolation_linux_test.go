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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCgroupRoot points detection at a scratch directory for the duration
// of a test.
func withCgroupRoot(t *testing.T, dir string) {
	old := cgroupRoot
	cgroupRoot = dir
	t.Cleanup(func() { cgroupRoot = old })
}

func TestDetectIsolatorUnavailable(t *testing.T) {
	// No cgroup.controllers file here, so detection must degrade.
	withCgroupRoot(t, t.TempDir())

	iso := DetectIsolator("det", quietLogger())
	assert.False(t, iso.Enabled())
	assert.NoError(t, iso.SetCPULimit("whatever", 1))
}

func TestDetectIsolatorAvailable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "cgroup.controllers"),
		[]byte("cpuset cpu io memory pids\n"), 0644))
	withCgroupRoot(t, root)

	iso := DetectIsolator("det", quietLogger())
	require.True(t, iso.Enabled())

	scope, err := iso.CreateScope(2)
	require.NoError(t, err)
	assert.Equal(t, "det-node2.scope", scope)
	assert.DirExists(t, filepath.Join(root, "det", scope))

	// Scope creation is idempotent across restarts.
	again, err := iso.CreateScope(2)
	require.NoError(t, err)
	assert.Equal(t, scope, again)

	require.NoError(t, iso.SetCPULimit(scope, 2))
	b, err := os.ReadFile(filepath.Join(root, "det", scope, "cpu.max"))
	require.NoError(t, err)
	assert.Equal(t, "200000 100000", string(b))

	require.NoError(t, iso.SetMemoryLimit(scope, 1<<30))
	b, err = os.ReadFile(filepath.Join(root, "det", scope, "memory.max"))
	require.NoError(t, err)
	assert.Equal(t, "1073741824", string(b))

	// No declared budget means no ceiling gets written.
	require.NoError(t, iso.SetMemoryLimit(scope, 0))

	require.NoError(t, iso.Attach(scope, 4242))
	b, err = os.ReadFile(filepath.Join(root, "det", scope, "cgroup.procs"))
	require.NoError(t, err)
	assert.Equal(t, "4242", string(b))

	// Destroy cannot remove a scope with content still in it, the same
	// way a real scope with processes attached refuses removal.  The
	// error is reportable but harmless.
	require.Error(t, iso.Destroy(scope))
	assert.DirExists(t, filepath.Join(root, "det", scope))

	for _, ctl := range []string{"cpu.max", "memory.max", "cgroup.procs"} {
		require.NoError(t, os.Remove(
			filepath.Join(root, "det", scope, ctl)))
	}
	require.NoError(t, iso.Destroy(scope))
	assert.NoDirExists(t, filepath.Join(root, "det", scope))
}
