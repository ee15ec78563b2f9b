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
	"log"
)

// DetectIsolator has no real binding off Linux; the fleet runs with the
// no-op provider and a single startup warning.
func DetectIsolator(fleet string, logger *log.Logger) Isolator {
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("Resource control not supported on this platform; " +
		"running without isolation")
	return noopIsolator{}
}
