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

// Package rest provides the HTTP control surface for a node fleet: a
// Handler exposing fleet and node state with etag based long polling, and
// a matching Client used by the nodevisor command.
package rest

import (
	"time"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// PollEtagHeader and PollTimeHeader request a long poll: the server
	// holds the GET until the resource's etag differs from the supplied
	// one, or the time (in seconds) expires.
	PollEtagHeader = "X-Nodevisor-Etag"
	PollTimeHeader = "X-Nodevisor-Wait"
)

var ok struct{}

// FleetInfo is the top-level resource.
type FleetInfo struct {
	Name       string    `json:"name"`
	NodeCount  int       `json:"node_count"`
	Healthy    int       `json:"healthy"`
	Isolation  bool      `json:"isolation"`
	CreateTime time.Time `json:"created"`
	UpdateTime time.Time `json:"updated"`

	etag string
}

// PlanInfo describes the resource plan the fleet was built from.
type PlanInfo struct {
	NodeCount       int   `json:"node_count"`
	CPUPerNode      int   `json:"cpu_per_node"`
	MemoryPerNode   int64 `json:"memory_per_node"`
	AvailableCores  int   `json:"available_cores"`
	AvailableMemory int64 `json:"available_memory"`
	SharedCores     bool  `json:"shared_cores"`
}

// NodeInfo is the per-node resource.
type NodeInfo struct {
	Name      string    `json:"name"`
	Index     int       `json:"index"`
	State     string    `json:"state"`
	Status    string    `json:"status"`
	TimeStamp time.Time `json:"tstamp"`
	Pid       int       `json:"pid"`
	Restarts  int       `json:"restarts"`
	HTTPPort  int       `json:"http_port"`
	RPCPort   int       `json:"rpc_port"`
	MetrPort  int       `json:"metrics_port"`
	CPUFirst  int       `json:"cpu_first"`
	CPULast   int       `json:"cpu_last"`
	Memory    int64     `json:"memory"`
	DataDir   string    `json:"data_dir"`
	LogDir    string    `json:"log_dir"`

	etag string
}

// HealthInfo is the aggregate health summary.
type HealthInfo struct {
	Healthy int  `json:"healthy"`
	Failed  int  `json:"failed"`
	Stopped int  `json:"stopped"`
	Total   int  `json:"total"`
	Viable  bool `json:"viable"`
}

// LogRecord mirrors the supervisor's log ring entries.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
