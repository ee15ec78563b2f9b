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
	"strings"
	"sync"
	"time"
)

const (
	// MaxLogRecords is the number of records the in-memory event log
	// retains before the oldest entries are overwritten.
	MaxLogRecords = 1000
)

// LogRecord is one line of supervisor history: a state transition, an
// escalation tick, or output captured from the control plane.  Records
// carry a monotonically increasing Id so clients can poll cheaply.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// EventLog is a fixed-size ring of LogRecords with change notification.
// It implements io.Writer so a log.Logger can be pointed straight at it.
type EventLog struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

func (l *EventLog) lock() {
	l.mx.Lock()
}

func (l *EventLog) unlock() {
	l.mx.Unlock()
}

// Write implements the Writer interface consumed by Logger.
func (l *EventLog) Write(b []byte) (int, error) {
	if l.maxRecords == 0 {
		l.maxRecords = MaxLogRecords
	}
	if l.records == nil {
		l.records = make([]LogRecord, l.maxRecords)
		l.numRecords = 0
	}
	str := strings.Trim(string(b), "\n")
	l.lock()
	for _, line := range strings.Split(str, "\n") {
		idx := l.numRecords % l.maxRecords
		l.id++
		l.records[idx].Text = line
		l.records[idx].Id = l.id
		l.records[idx].Time = time.Now()
		// numRecords may exceed maxRecords; it really tracks the
		// next insertion index, not the population.
		l.numRecords++
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.unlock()
	return len(b), nil
}

func (l *EventLog) Clear() {
	l.lock()
	l.numRecords = 0
	// Restart the id sequence from the clock so cached client ids
	// are invalidated rather than accidentally matched.
	l.id = time.Now().UnixNano()
	l.unlock()
}

// GetRecords returns the retained records along with an id usable as an
// Etag.  If last matches the current id, nil is returned immediately,
// permitting callers to skip serialization when nothing changed.
func (l *EventLog) GetRecords(last int64) ([]LogRecord, int64) {
	l.lock()
	if l.id == last {
		l.unlock()
		return nil, last
	}
	var recs []LogRecord
	cnt := l.numRecords
	cur := l.numRecords
	if l.numRecords > l.maxRecords {
		recs = make([]LogRecord, 0, l.maxRecords)
		cnt = l.maxRecords
	} else {
		recs = make([]LogRecord, 0, l.numRecords)
	}
	if cnt > cur {
		cnt = cur
	}
	index := cur - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, l.records[index%l.maxRecords])
		index++
	}
	id := l.id
	l.unlock()
	return recs, id
}

// Watch blocks until the log id differs from last, or until expire has
// elapsed.  It returns the current id either way.  An expire of zero makes
// this a plain poll.
func (l *EventLog) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&l.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			l.lock()
			expired = true
			cv.Broadcast()
			l.unlock()
		})
	} else {
		expired = true
	}

	l.lock()
	l.cvs[cv] = true
	for {
		if l.id != last || expired {
			break
		}
		cv.Wait()
	}
	delete(l.cvs, cv)
	if l.id != last {
		last = l.id
	}
	l.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewEventLog returns an empty EventLog.
func NewEventLog() *EventLog {
	l := &EventLog{
		maxRecords: MaxLogRecords,
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
	}
	return l
}
