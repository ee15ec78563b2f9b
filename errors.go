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
	"errors"
)

var (
	ErrNoFleet      = errors.New("Node not attached to a fleet")
	ErrNotRunning   = errors.New("Node is not running")
	ErrIsRunning    = errors.New("Node is already running")
	ErrStopped      = errors.New("Node administratively stopped")
	ErrRateLimited  = errors.New("Restarting too quickly")
	ErrBadNodeCount = errors.New("Node count must be at least one")
	ErrBadPorts     = errors.New("Base ports and stride must be positive")
	ErrNoWorker     = errors.New("Worker binary not specified")
	ErrFleetDown    = errors.New("Fleet has been shut down")
	ErrNoSuchNode   = errors.New("No node with that name or index")
)
