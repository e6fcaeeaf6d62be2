package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Console signals emitted by the session provider's in-page instrumentation
// when a CAPTCHA is detected and solved.
const (
	captchaStartMsg = "browserbase-solving-started"
	captchaEndMsg   = "browserbase-solving-finished"
)

// SolveOutcome is a terminal state of the CAPTCHA solve protocol.
type SolveOutcome string

const (
	// OutcomeSolved means both solve signals were observed in order.
	OutcomeSolved SolveOutcome = "solved"
	// OutcomeNoCaptcha means no solve activity at all: the page had no
	// CAPTCHA. Not an error.
	OutcomeNoCaptcha SolveOutcome = "no-captcha"
)

// SolveState tracks the asynchronous CAPTCHA solve signals for one fetch.
// HandleConsole is fed every console message from the page; Wait reconciles
// the observed signals into a terminal outcome.
type SolveState struct {
	mu       sync.Mutex
	started  bool
	finished bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewSolveState creates an idle solve state.
func NewSolveState() *SolveState {
	return &SolveState{done: make(chan struct{})}
}

// HandleConsole updates the state from one console message.
func (s *SolveState) HandleConsole(msg string) {
	switch msg {
	case captchaStartMsg:
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
	case captchaEndMsg:
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// Wait blocks until the end signal arrives or the timeout elapses, then
// reconciles the state:
//
//	end signal seen, start seen   → solved
//	timeout, no signals           → no-captcha (page had none)
//	timeout, started but no end   → error (solve hung)
//	any other started != finished → error (signal mismatch)
func (s *SolveState) Wait(ctx context.Context, timeout time.Duration) (SolveOutcome, error) {
	select {
	case <-s.done:
	case <-time.After(timeout):
	case <-ctx.Done():
		return "", eris.Wrap(ctx.Err(), "captcha: wait canceled")
	}

	s.mu.Lock()
	started, finished := s.started, s.finished
	s.mu.Unlock()

	switch {
	case started && finished:
		return OutcomeSolved, nil
	case !started && !finished:
		return OutcomeNoCaptcha, nil
	case started && !finished:
		return "", eris.Errorf("captcha: no solving-finished signal within %s", timeout)
	default:
		return "", eris.Errorf("captcha: signal mismatch, started=%t finished=%t", started, finished)
	}
}
