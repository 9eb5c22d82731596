package commands

import (
	"fmt"
	"io"
	"sync"
	"time"

	"statementsync/internal/run"

	"github.com/jedib0t/go-pretty/v6/progress"
)

var severityMarks = map[run.Severity]string{
	run.SeverityInfo:    "...",
	run.SeveritySuccess: "DONE",
	run.SeverityError:   "ERR",
	run.SeverityWarning: "!",
}

// progressSink renders a run as one progress bar per client.
type progressSink struct {
	writer progress.Writer

	mutex    sync.Mutex
	trackers map[string]*progress.Tracker
}

func newProgressSink(out io.Writer) *progressSink {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = false
	pw.Style().Visibility.Speed = false
	pw.Style().Visibility.Time = false

	go pw.Render()

	return &progressSink{
		writer:   pw,
		trackers: map[string]*progress.Tracker{},
	}
}

func (s *progressSink) tracker(clientId, message string) *progress.Tracker {
	tracker, ok := s.trackers[clientId]
	if ok {
		return tracker
	}
	tracker = &progress.Tracker{
		Message: message,
		Total:   100,
		Units:   progress.UnitsDefault,
	}
	s.trackers[clientId] = tracker
	s.writer.AppendTracker(tracker)
	return tracker
}

func (s *progressSink) Progress(p run.Progress) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tracker := s.tracker(p.ClientId, fmt.Sprintf("[%d/%d] %s - Due: %s", p.Index, p.Total, p.Name, p.Balance))
	tracker.SetValue(int64(p.Percent))
}

func (s *progressSink) Log(entry run.Entry) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if entry.ClientId == "" {
		s.writer.Log("%s %s", severityMarks[entry.Severity], entry.Message)
		return
	}

	tracker, ok := s.trackers[entry.ClientId]
	switch entry.Severity {
	case run.SeveritySuccess:
		if !ok {
			s.writer.Log("%s %s", severityMarks[entry.Severity], entry.Message)
			return
		}
		tracker.UpdateMessage(entry.Message)
		tracker.MarkAsDone()
	case run.SeverityError:
		if !ok {
			s.writer.Log("%s %s", severityMarks[entry.Severity], entry.Message)
			return
		}
		tracker.UpdateMessage(entry.Message)
		tracker.MarkAsErrored()
	}
	// in-flight download lines are already shown by the tracker
}

// Stop flushes the last render and stops the renderer.
func (s *progressSink) Stop() {
	// give the renderer one more tick to draw the final tracker states
	time.Sleep(150 * time.Millisecond)
	s.writer.Stop()
	for s.writer.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}
