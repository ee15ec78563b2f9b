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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogInfo is a cached view of a log resource.
type LogInfo struct {
	name    string
	etag    string
	Records []LogRecord
}

// Client speaks to a nodevisor Handler.  Results are cached by etag, so
// repeated gets of an unchanged resource cost one conditional round trip.
type Client struct {
	user      string // HTTP Basic-Auth
	pass      string
	base      string // URI to root of tree on server
	auth      bool
	client    *http.Client
	transport *http.Transport

	// Cached data
	fleet *FleetInfo
	nodes map[string]*NodeInfo // node entries
	names []string             // node names
	etag  string               // etag for list of nodes
	logs  map[string]*LogInfo
	lock  sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/nodes"
	}
	return c.base + "/nodes/" + url.QueryEscape(name)
}

// GetFleet returns the top-level fleet resource.
func (c *Client) GetFleet() (*FleetInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.pollFleet(ctx, 0, nil)
}

// WatchFleet long polls for a change to the fleet resource.
func (c *Client) WatchFleet(ctx context.Context, last *FleetInfo) (*FleetInfo, error) {
	return c.pollFleet(ctx, maxPollSecs, last)
}

func (c *Client) pollFleet(ctx context.Context, secs int, last *FleetInfo) (*FleetInfo, error) {
	c.lock.Lock()
	cached := c.fleet
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if cached != nil && last.etag != cached.etag {
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &FleetInfo{}
	etag, e := c.poll(ctx, c.base+"/fleet", otag, secs, v)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.fleet = v
	c.lock.Unlock()
	return v, nil
}

// GetPlan returns the resource plan the fleet was built from.
func (c *Client) GetPlan() (*PlanInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v := &PlanInfo{}
	if _, e := c.poll(ctx, c.base+"/fleet/plan", "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

// GetHealth returns the aggregate health summary.
func (c *Client) GetHealth() (*HealthInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v := &HealthInfo{}
	if _, e := c.poll(ctx, c.base+"/fleet/health", "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollNodes(ctx context.Context, secs int) ([]string, error) {
	var e error
	v := []string{}

	c.lock.Lock()
	otag := c.etag
	etag := ""
	onames := c.names
	c.lock.Unlock()

	if etag, e = c.poll(ctx, c.url(""), otag, secs, &v); e != nil {
		return nil, e
	}
	if etag == "" || etag == otag {
		return onames, nil
	}
	nodes := make(map[string]*NodeInfo)

	c.lock.Lock()
	c.etag = etag
	c.names = v
	// carry over cached entries that survived
	for _, n := range v {
		if info, ok := c.nodes[n]; ok {
			nodes[n] = info
			delete(c.nodes, n)
		}
	}
	c.nodes = nodes
	c.lock.Unlock()

	return v, nil
}

// Nodes returns the list of node names.
func (c *Client) Nodes() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.pollNodes(ctx, 0)
}

// WatchNodes long polls for a change in the node list.
func (c *Client) WatchNodes(ctx context.Context) ([]string, error) {
	return c.pollNodes(ctx, maxPollSecs)
}

func (c *Client) pollNode(ctx context.Context, name string, secs int, last *NodeInfo) (*NodeInfo, error) {
	v := &NodeInfo{}
	c.lock.Lock()
	onode, ok := c.nodes[name]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != onode.etag {
		// The cache already moved past the caller's view.
		return onode, nil
	} else {
		otag = last.etag
	}

	etag, e := c.poll(ctx, c.url(name), otag, secs, v)
	if e != nil {
		c.lock.Lock()
		delete(c.nodes, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		return onode, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.nodes[name] = v
	c.lock.Unlock()
	return v, nil
}

func (c *Client) GetNode(name string) (*NodeInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.pollNode(ctx, name, 0, nil)
}

func (c *Client) WatchNode(ctx context.Context, name string, last *NodeInfo) (*NodeInfo, error) {
	return c.pollNode(ctx, name, maxPollSecs, last)
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error
// will be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {

	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", &Error{Code: res.StatusCode, Message: res.Status}
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) post(url string) error {
	req, e := http.NewRequest("POST", url, strings.NewReader(""))
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", "text/plain") // we don't really care
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &Error{Code: res.StatusCode, Message: res.Status}
	}
	return nil
}

func (c *Client) postNode(name string, action string) error {
	return c.post(c.url(name) + "/" + action)
}

func (c *Client) RestartNode(name string) error {
	return c.postNode(name, "restart")
}

func (c *Client) StopNode(name string) error {
	return c.postNode(name, "stop")
}

func (c *Client) StartNode(name string) error {
	return c.postNode(name, "start")
}

func (c *Client) pollLog(ctx context.Context, name string, secs int, last *LogInfo) (*LogInfo, error) {

	v := &LogInfo{name: name}

	c.lock.Lock()
	cached, ok := c.logs[name]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != cached.etag {
		secs = 0
		otag = cached.etag
	} else {
		otag = last.etag
	}

	url := c.url(name) + "/log"
	if name == "" {
		url = c.base + "/log"
	}

	etag, e := c.poll(ctx, url, otag, secs, &v.Records)
	if e != nil {
		c.lock.Lock()
		delete(c.logs, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.logs[name] = v
	c.lock.Unlock()

	return v, nil
}

// WatchLog long polls for new log records.  Name selects a node log, or
// the fleet log when empty.
func (c *Client) WatchLog(ctx context.Context, name string, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, name, maxPollSecs, last)
}

func (c *Client) GetLog(name string) (*LogInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.pollLog(ctx, name, 0, nil)
}

// NewClient returns a Client handle.  The transport may be nil to use a
// default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	c := &Client{
		transport: t,
		base:      strings.TrimSuffix(baseURI, "/"),
		client:    &http.Client{Transport: t},
		nodes:     make(map[string]*NodeInfo),
		logs:      make(map[string]*LogInfo),
	}
	return c
}
