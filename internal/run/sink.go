package run

import "sync"

type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityError
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Entry is a log line of a run. Entries with the same non-empty ClientId
// replace each other.
type Entry struct {
	Message  string
	Severity Severity
	ClientId string
}

// Progress is emitted for every chunk of a client's download.
type Progress struct {
	Index    int
	Total    int
	ClientId string
	Name     string
	Balance  string
	// Percent is 0 when the download size is unknown.
	Percent float64
}

// Sink receives the log lines and progress of a run, it is called from the
// worker goroutine.
//
// note: fault injection point
type Sink interface {
	Log(entry Entry)
	Progress(progress Progress)
}

// LogBook is a Sink that keeps every entry in memory with upserts by client id.
type LogBook struct {
	mutex    sync.Mutex
	entries  []Entry
	byClient map[string]int
	progress []Progress
}

func (l *LogBook) Log(entry Entry) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.byClient == nil {
		l.byClient = map[string]int{}
	}
	if entry.ClientId != "" {
		if idx, ok := l.byClient[entry.ClientId]; ok {
			l.entries[idx] = entry
			return
		}
		l.byClient[entry.ClientId] = len(l.entries)
	}
	l.entries = append(l.entries, entry)
}

func (l *LogBook) Progress(progress Progress) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.progress = append(l.progress, progress)
}

// Entries returns the current entries in the order they were first logged.
func (l *LogBook) Entries() []Entry {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *LogBook) ProgressUpdates() []Progress {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	out := make([]Progress, len(l.progress))
	copy(out, l.progress)
	return out
}

// Sinks fans every call out to each of its members.
type Sinks []Sink

func (s Sinks) Log(entry Entry) {
	for _, sink := range s {
		sink.Log(entry)
	}
}

func (s Sinks) Progress(progress Progress) {
	for _, sink := range s {
		sink.Progress(progress)
	}
}
