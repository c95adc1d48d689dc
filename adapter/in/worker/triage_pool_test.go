package worker

import (
	"testing"

	"github.com/rs/zerolog"
)

func newIdlePool() *Pool {
	handler := NewHandler(nil, nil, nil)
	return NewPool(handler, DefaultPoolConfig(), zerolog.Nop())
}

func TestSubmitBeforeStartRejected(t *testing.T) {
	p := newIdlePool()

	msg := NewMessage(JobImport, map[string]any{"account_id": "acct-1"})
	if p.Submit(msg) {
		t.Error("Submit accepted a job before Start")
	}
	if p.SubmitPriority(msg) {
		t.Error("SubmitPriority accepted a job before Start")
	}
}

func TestSubmitPriorityAfterStopRejected(t *testing.T) {
	p := newIdlePool()
	p.Start()
	p.Stop()

	msg := NewPriorityMessage(JobImport, map[string]any{"account_id": "acct-1"}, PriorityHigh)
	if p.SubmitPriority(msg) {
		t.Error("SubmitPriority accepted a job after Stop")
	}
	if p.Submit(msg) {
		t.Error("Submit accepted a job after Stop")
	}
}

func TestStopTwiceIsSafe(t *testing.T) {
	p := newIdlePool()
	p.Start()
	p.Stop()
	p.Stop()
}
