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

package main

import (
	"github.com/nodevisor/nodevisor/nodevisor/ui"
	"github.com/nodevisor/nodevisor/rest"
)

func doUI(client *rest.Client, url string) {
	app := ui.NewApp(client, url)
	app.Run()
}

/*
   Our screen has the following appearance:

    http://localhost:8321/                                       Nodevisor v1.0
   ____________________________________________________________________________
   ...
   myhost-0         healthy        0:04:10   Readiness probe passed
   ...
   myhost-1         unhealthy      0:00:05   Readiness probe failing
   ...
   myhost-2         stopped        1:32:05   Stop requested
   ...
   ____________________________________________________________________________
   [Q] Quit [H] Help [I] Info [L] Log [X] Stop [R] Restart
*/
