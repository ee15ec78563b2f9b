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

package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/nodevisor/nodevisor/nodevisor/util"
	"github.com/nodevisor/nodevisor/rest"
)

type InfoPanel struct {
	text *views.TextArea
	info *rest.NodeInfo
	name string // node name
	err  error  // last error retrieving state

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}

	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	info := p.info
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				if info != nil {
					app.ShowLog(info.Name)
					return true
				}
			case 'R', 'r':
				if info != nil && !util.Stopped(info) {
					app.RestartNode(info.Name)
					return true
				}
			case 'S', 's':
				if info != nil && util.Stopped(info) {
					app.StartNode(info.Name)
					return true
				}
			case 'X', 'x':
				if info != nil && !util.Stopped(info) {
					app.StopNode(info.Name)
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetName(name string) {
	p.name = name
}

// update must be called with AppLock held.
func (p *InfoPanel) update() {

	s, e := p.App().GetItem(p.name)

	if p.info == s && p.err == e {
		return
	}
	p.info = s
	p.err = e
	words := []string{"[ESC] Main", "[H] Help"}

	p.SetTitle("Details for " + p.name)

	if s == nil {
		if p.err != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", p.err))
			p.SetError()
		} else {
			p.SetStatus("Loading...")
			p.SetNormal()
		}
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}

	p.SetStatus("")
	if util.Stopped(s) {
		p.SetNormal()
	} else if util.Failed(s) {
		p.SetError()
	} else if util.Healthy(s) {
		p.SetGood()
	} else {
		p.SetWarn()
	}

	d := time.Since(s.TimeStamp)
	d -= d % time.Second

	lines := make([]string, 0, 12)
	lines = append(lines, fmt.Sprintf("%10s %s", "Name:", s.Name))
	lines = append(lines, fmt.Sprintf("%10s %d", "Index:", s.Index))
	lines = append(lines, fmt.Sprintf("%10s %s (%s)", "State:",
		s.State, util.FormatDuration(d)))
	lines = append(lines, fmt.Sprintf("%10s %s", "Detail:", s.Status))
	lines = append(lines, fmt.Sprintf("%10s %d", "Pid:", s.Pid))
	lines = append(lines, fmt.Sprintf("%10s %d", "Restarts:", s.Restarts))
	lines = append(lines, fmt.Sprintf("%10s http=%d rpc=%d metrics=%d",
		"Ports:", s.HTTPPort, s.RPCPort, s.MetrPort))
	lines = append(lines, fmt.Sprintf("%10s %d-%d", "CPUs:",
		s.CPUFirst, s.CPULast))
	lines = append(lines, fmt.Sprintf("%10s %d MiB", "Memory:",
		s.Memory/(1024*1024)))
	lines = append(lines, fmt.Sprintf("%10s %s", "Data:", s.DataDir))
	lines = append(lines, fmt.Sprintf("%10s %s", "Logs:", s.LogDir))

	p.text.SetLines(lines)

	words = append(words, "[L] Log")
	if util.Stopped(s) {
		words = append(words, "[S] Start")
	} else {
		words = append(words, "[X] Stop")
		words = append(words, "[R] Restart")
	}
	p.SetKeys(words)
}
