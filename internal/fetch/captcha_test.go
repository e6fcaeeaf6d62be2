package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveState_Solved(t *testing.T) {
	t.Parallel()

	s := NewSolveState()
	s.HandleConsole(captchaStartMsg)
	s.HandleConsole(captchaEndMsg)

	outcome, err := s.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSolved, outcome)
}

func TestSolveState_SolvedAfterWaitStarts(t *testing.T) {
	t.Parallel()

	s := NewSolveState()
	go func() {
		time.Sleep(50 * time.Millisecond)
		s.HandleConsole(captchaStartMsg)
		s.HandleConsole(captchaEndMsg)
	}()

	outcome, err := s.Wait(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSolved, outcome)
}

func TestSolveState_NoCaptcha(t *testing.T) {
	t.Parallel()

	s := NewSolveState()

	outcome, err := s.Wait(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCaptcha, outcome)
}

func TestSolveState_SolveHung(t *testing.T) {
	t.Parallel()

	s := NewSolveState()
	s.HandleConsole(captchaStartMsg)

	_, err := s.Wait(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no solving-finished signal")
}

func TestSolveState_FinishWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewSolveState()
	s.HandleConsole(captchaEndMsg)

	_, err := s.Wait(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestSolveState_IgnoresUnrelatedMessages(t *testing.T) {
	t.Parallel()

	s := NewSolveState()
	s.HandleConsole("some page log line")
	s.HandleConsole("browserbase-solving-startedish")

	outcome, err := s.Wait(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCaptcha, outcome)
}

func TestSolveState_WaitCancelled(t *testing.T) {
	t.Parallel()

	s := NewSolveState()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Wait(ctx, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel")
}
