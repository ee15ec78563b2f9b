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
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// updateSettle is how long the binary must stay quiet after a write before
// a rolling restart begins.  Deploy tools write in bursts.
const updateSettle = 3 * time.Second

// RollingRestart restarts the fleet one node at a time, waiting for each
// node to report Healthy before touching the next, so a bad binary stops
// the roll after a single casualty.  Stopped nodes are skipped.
func (f *Fleet) RollingRestart() error {
	f.lock()
	if f.stopped {
		f.unlock()
		return ErrFleetDown
	}
	nodes := append([]*Node{}, f.nodes...)
	f.unlock()

	f.logf("Rolling restart of fleet %s", f.name)
	for _, n := range nodes {
		if n.State() == StateStopped {
			continue
		}
		if err := f.RestartNode(n.Name()); err != nil {
			return err
		}
		if err := f.waitHealthy(n); err != nil {
			f.logf("Rolling restart halted at %s: %v", n.Name(), err)
			return err
		}
	}
	f.logf("Rolling restart of fleet %s complete", f.name)
	return nil
}

// waitHealthy blocks until the node reports Healthy, bounded by the
// readiness window plus one monitoring cycle of slack.
func (f *Fleet) waitHealthy(n *Node) error {
	deadline := time.Now().Add(f.cfg.StartWindow + f.cfg.Interval)
	serial := f.Serial()
	for {
		switch n.State() {
		case StateHealthy:
			return nil
		case StateStopped:
			return ErrStopped
		}
		if time.Now().After(deadline) {
			return ErrNotRunning
		}
		serial = f.WatchSerial(serial, time.Second)
	}
}

// WatchBinary watches the worker binary for replacement and performs a
// rolling restart when it changes.  The watch is on the parent directory
// so rename-into-place deploys (the common atomic pattern) are seen.
// Call stop on the returned context to cancel.
func (f *Fleet) WatchBinary() (*stopper.Context, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	binary := f.cfg.WorkerPath
	if err := watcher.Add(filepath.Dir(binary)); err != nil {
		watcher.Close()
		return nil, err
	}

	sctx := stopper.WithContext(context.Background())
	sctx.Defer(func() { watcher.Close() })
	sctx.Go(func(sctx *stopper.Context) error {
		var settle *time.Timer
		var settleC <-chan time.Time
		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) != binary {
					continue
				}
				if !ev.Has(fsnotify.Write) &&
					!ev.Has(fsnotify.Create) &&
					!ev.Has(fsnotify.Rename) {
					continue
				}
				f.logf("Worker binary %s changed", binary)
				if settle == nil {
					settle = time.NewTimer(updateSettle)
					settleC = settle.C
				} else {
					settle.Reset(updateSettle)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				f.logf("Binary watch error: %v", err)
			case <-settleC:
				settleC = nil
				settle = nil
				if err := f.RollingRestart(); err != nil {
					f.logf("Rolling restart failed: %v", err)
				}
			}
		}
		return nil
	})
	return sctx, nil
}
