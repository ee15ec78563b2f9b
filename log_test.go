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
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEventLog(t *testing.T) {
	Convey("Given an empty event log", t, func() {
		elog := NewEventLog()
		logger := log.New(elog, "", 0)

		Convey("It starts with no records", func() {
			recs, id := elog.GetRecords(0)
			So(recs, ShouldBeEmpty)
			So(id, ShouldNotEqual, 0)
		})

		Convey("Records carry increasing ids", func() {
			logger.Println("first")
			logger.Println("second")
			recs, id := elog.GetRecords(0)
			So(len(recs), ShouldEqual, 2)
			So(recs[0].Text, ShouldEqual, "first")
			So(recs[1].Text, ShouldEqual, "second")
			So(recs[1].Id, ShouldBeGreaterThan, recs[0].Id)
			So(id, ShouldEqual, recs[1].Id)

			Convey("And a matching id short-circuits", func() {
				again, nid := elog.GetRecords(id)
				So(again, ShouldBeNil)
				So(nid, ShouldEqual, id)
			})
		})

		Convey("The ring discards the oldest lines", func() {
			for i := 0; i < MaxLogRecords+10; i++ {
				logger.Printf("line %d", i)
			}
			recs, _ := elog.GetRecords(0)
			So(len(recs), ShouldEqual, MaxLogRecords)
			So(recs[0].Text, ShouldEqual, "line 10")
			So(recs[len(recs)-1].Text, ShouldEqual,
				fmt.Sprintf("line %d", MaxLogRecords+9))
		})

		Convey("Clear empties the log and restarts ids", func() {
			logger.Println("doomed")
			_, old := elog.GetRecords(0)
			elog.Clear()
			recs, id := elog.GetRecords(0)
			So(recs, ShouldBeEmpty)
			So(id, ShouldNotEqual, old)
		})

		Convey("Watch wakes on a new record", func() {
			_, id := elog.GetRecords(0)
			ch := make(chan int64)
			go func() {
				ch <- elog.Watch(id, 10*time.Second)
			}()
			time.Sleep(10 * time.Millisecond)
			logger.Println("wake up")
			select {
			case nid := <-ch:
				So(nid, ShouldNotEqual, id)
			case <-time.After(5 * time.Second):
				t.Errorf("watch never woke")
			}
		})

		Convey("Watch expires quietly when nothing happens", func() {
			_, id := elog.GetRecords(0)
			start := time.Now()
			nid := elog.Watch(id, 20*time.Millisecond)
			So(nid, ShouldEqual, id)
			So(time.Since(start), ShouldBeLessThan, 5*time.Second)
		})
	})
}

func TestMultiLogger(t *testing.T) {
	Convey("Given a multilogger with two destinations", t, func() {
		mlog := NewMultiLogger()
		var one, two bytes.Buffer
		l1 := log.New(&one, "", 0)
		l2 := log.New(&two, "", 0)
		mlog.AddLogger(l1)
		mlog.AddLogger(l2)

		Convey("Lines fan out to both", func() {
			mlog.Logger().Println("hello")
			So(one.String(), ShouldEqual, "hello\n")
			So(two.String(), ShouldEqual, "hello\n")
		})

		Convey("Prefixes apply to every destination", func() {
			mlog.SetPrefix("[n0] ")
			mlog.Logger().Println("tagged")
			So(strings.HasPrefix(one.String(), "[n0] "), ShouldBeTrue)
			So(strings.HasPrefix(two.String(), "[n0] "), ShouldBeTrue)
		})

		Convey("Removed destinations stop receiving", func() {
			mlog.DelLogger(l2)
			mlog.Logger().Println("solo")
			So(one.String(), ShouldContainSubstring, "solo")
			So(two.String(), ShouldBeEmpty)
		})

		Convey("Double registration does not duplicate lines", func() {
			mlog.AddLogger(l1)
			mlog.Logger().Println("once")
			So(strings.Count(one.String(), "once"), ShouldEqual, 1)
		})
	})
}
