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

package rest

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/nodevisor/nodevisor"
)

// maxPollSecs caps how long a single long poll may hold a connection.
const maxPollSecs = 300

// Handler wraps a Fleet, adding http.Handler functionality.
type Handler struct {
	f    *nodevisor.Fleet
	r    *mux.Router
	user string
	pass string
	auth bool
}

// SetAuth enables HTTP Basic authentication on every route.
func (h *Handler) SetAuth(user string, pass string) {
	h.user = user
	h.pass = pass
	h.auth = true
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func etagStr(serial int64) string {
	return fmt.Sprintf("\"%x\"", serial)
}

// pollSerial implements the long-poll contract: when the caller supplied
// our poll headers and its etag still matches, block in watch until the
// serial moves or the wait expires.  Otherwise just report the current
// serial.
func pollSerial(r *http.Request, cur int64,
	watch func(old int64, expire time.Duration) int64) int64 {

	tag := strings.Trim(r.Header.Get(PollEtagHeader), "\"")
	old, err := strconv.ParseInt(tag, 16, 64)
	if err != nil {
		return cur
	}
	secs, err := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if err != nil || secs <= 0 {
		return cur
	}
	if secs > maxPollSecs {
		secs = maxPollSecs
	}
	if old != cur {
		return cur
	}
	return watch(old, time.Duration(secs)*time.Second)
}

// writeJson emits the value with the given etag, honoring If-None-Match.
func (h *Handler) writeJson(w http.ResponseWriter, r *http.Request,
	etag string, v interface{}) {

	if etag != "" {
		w.Header().Set("Etag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

func mapError(err error) *Error {
	switch err {
	case nil:
		return nil
	case nodevisor.ErrNoSuchNode:
		return &Error{http.StatusNotFound, err.Error()}
	default:
		return &Error{http.StatusBadRequest, err.Error()}
	}
}

func (h *Handler) getFleet(w http.ResponseWriter, r *http.Request) {
	serial := pollSerial(r, h.f.Serial(), h.f.WatchSerial)
	info := h.f.GetInfo()
	v := &FleetInfo{
		Name:       info.Name,
		NodeCount:  info.NodeCount,
		Healthy:    info.Healthy,
		Isolation:  info.Isolation,
		CreateTime: info.CreateTime,
		UpdateTime: info.UpdateTime,
	}
	h.writeJson(w, r, etagStr(serial), v)
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	p := h.f.Plan()
	v := &PlanInfo{
		NodeCount:       p.NodeCount,
		CPUPerNode:      p.CPUPerNode,
		MemoryPerNode:   p.MemoryPerNode,
		AvailableCores:  p.AvailableCores,
		AvailableMemory: p.AvailableMemory,
		SharedCores:     p.SharedCores,
	}
	h.writeJson(w, r, "", v)
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	serial := pollSerial(r, h.f.Serial(), h.f.WatchSerial)
	nodes, _, _ := h.f.Nodes()
	v := &HealthInfo{}
	for _, n := range nodes {
		switch n.State() {
		case nodevisor.StateHealthy:
			v.Healthy++
			v.Total++
		case nodevisor.StateStopped:
			v.Stopped++
		default:
			v.Failed++
			v.Total++
		}
	}
	v.Viable = v.Total > 0 && v.Failed <= v.Total/2
	h.writeJson(w, r, etagStr(serial), v)
}

func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, sn, _ := h.f.Nodes()
	sn = pollSerial(r, sn, h.f.WatchNodes)
	nodes, _, _ = h.f.Nodes()
	l := make([]string, 0, len(nodes))
	for _, n := range nodes {
		l = append(l, n.Name())
	}
	h.writeJson(w, r, etagStr(sn), l)
}

func (h *Handler) findNode(name string) (*nodevisor.Node, *Error) {
	if n := h.f.FindNode(name); n != nil {
		return n, nil
	}
	return nil, &Error{http.StatusNotFound, "Node not found"}
}

func (h *Handler) getNode(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["node"]
	n, e := h.findNode(name)
	if e != nil {
		h.writeError(w, e)
		return
	}
	serial := pollSerial(r, n.Serial(), n.WatchSerial)
	ports := n.Ports()
	first, last := n.CPURange()
	info := &NodeInfo{
		Name:     n.Name(),
		Index:    n.Index(),
		State:    n.State().String(),
		Pid:      n.Pid(),
		Restarts: n.Restarts(),
		HTTPPort: ports.HTTP,
		RPCPort:  ports.RPC,
		MetrPort: ports.Metrics,
		CPUFirst: first,
		CPULast:  last,
		Memory:   n.MemoryLimit(),
		DataDir:  n.DataDir(),
		LogDir:   n.LogDir(),
	}
	info.Status, info.TimeStamp = n.Status()
	h.writeJson(w, r, etagStr(serial), info)
}

func (h *Handler) restartNode(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["node"]
	if e := mapError(h.f.RestartNode(name)); e != nil {
		h.writeError(w, e)
	} else {
		h.writeJson(w, r, "", ok)
	}
}

func (h *Handler) stopNode(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["node"]
	if e := mapError(h.f.StopNode(name)); e != nil {
		h.writeError(w, e)
	} else {
		h.writeJson(w, r, "", ok)
	}
}

func (h *Handler) startNode(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["node"]
	if e := mapError(h.f.StartNode(name)); e != nil {
		h.writeError(w, e)
	} else {
		h.writeJson(w, r, "", ok)
	}
}

func (h *Handler) getNodeLog(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["node"]
	n, e := h.findNode(name)
	if e != nil {
		h.writeError(w, e)
		return
	}
	recs, last := n.GetLogRecords(0)
	last = pollSerial(r, last, n.WatchLog)
	recs, last = n.GetLogRecords(0)
	h.writeJson(w, r, etagStr(last), recs)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	recs, last := h.f.GetLog(0)
	last = pollSerial(r, last, h.f.WatchLog)
	recs, last = h.f.GetLog(0)
	h.writeJson(w, r, etagStr(last), recs)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if h.auth {
		user, pass, got := req.BasicAuth()
		if !got ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(h.pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=\"nodevisor\"")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	h.r.ServeHTTP(w, req)
}

func NewHandler(f *nodevisor.Fleet) *Handler {
	r := mux.NewRouter()
	h := &Handler{f: f, r: r}
	r.HandleFunc("/fleet", h.getFleet).Methods("GET")
	r.HandleFunc("/fleet/plan", h.getPlan).Methods("GET")
	r.HandleFunc("/fleet/health", h.getHealth).Methods("GET")
	r.HandleFunc("/nodes", h.listNodes).Methods("GET")
	r.HandleFunc("/nodes/{node}", h.getNode).Methods("GET")
	r.HandleFunc("/nodes/{node}/restart", h.restartNode).Methods("POST")
	r.HandleFunc("/nodes/{node}/stop", h.stopNode).Methods("POST")
	r.HandleFunc("/nodes/{node}/start", h.startNode).Methods("POST")
	r.HandleFunc("/nodes/{node}/log", h.getNodeLog).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	return h
}
