package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"jot/session"
)

// Controller events as TUI messages.
type stateMsg struct {
	State  session.State
	Reason session.Reason
}
type progressMsg session.Progress
type noticeMsg session.Notice
type reviewMsg session.Review

// teaSink forwards controller events to the running program. Events sent
// while no program is attached are dropped.
type teaSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *teaSink) attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *teaSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s *teaSink) StateChanged(st session.State, r session.Reason) {
	s.send(stateMsg{State: st, Reason: r})
}

func (s *teaSink) Progress(p session.Progress)      { s.send(progressMsg(p)) }
func (s *teaSink) Notice(n session.Notice)          { s.send(noticeMsg(n)) }
func (s *teaSink) TranscriptReady(r session.Review) { s.send(reviewMsg(r)) }
