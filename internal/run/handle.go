package run

import (
	"context"
	"fmt"
)

// Handle is a run executing on its own worker goroutine.
type Handle struct {
	cancel *CancelToken
	done   chan struct{}
	report Report
	err    error
}

// Start resets the cancel token and runs the orchestrator on a background
// goroutine. The caller controls the run only through the handle.
func Start(ctx context.Context, o *Orchestrator, req Request) *Handle {
	o.cancel.Reset()

	h := &Handle{
		cancel: o.cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("run panicked: %v", r)
				o.sink.Log(Entry{Message: fmt.Sprintf("Error: %v", r), Severity: SeverityError})
			}
		}()
		h.report, h.err = o.run(ctx, req)
	}()
	return h
}

// Cancel asks the run to stop at the next client or download chunk.
func (h *Handle) Cancel() {
	h.cancel.Cancel()
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run has finished.
func (h *Handle) Wait() (Report, error) {
	<-h.done
	return h.report, h.err
}
