package statement

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"statementsync/internal/booking"
)

// Stage is a step of the statement pipeline.
type Stage int

const (
	StageAccessPage Stage = iota
	StageExtractTransactions
	StageRequestReport
	StageResolveControlId
	StageStreamPdf
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageAccessPage:
		return "access-page"
	case StageExtractTransactions:
		return "extract-transactions"
	case StageRequestReport:
		return "request-report"
	case StageResolveControlId:
		return "resolve-control-id"
	case StageStreamPdf:
		return "stream-pdf"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// user facing reasons of a finished job
const (
	MessageDone           = "Done"
	MessageReportFailed   = "Report failed"
	MessageDownloadFailed = "Download failed"
	MessageCancelled      = "Cancelled"
)

// Job is the statement download of a single client.
type Job struct {
	ClientId   string
	ClientName string
	FromDate   string
	ToDate     string
	OutputDir  string
	// ReportToken is the per run anti-forgery token for report generation.
	ReportToken string
}

// Result is the terminal state of a job.
type Result struct {
	Ok      bool
	Message string
	// Stage is where the job ended, StageDone on success.
	Stage Stage
	// Path is set as soon as the output path is known, a failed job may leave
	// a partial file behind.
	Path  string
	Bytes int64
	Err   error
}

// Progress receives the bytes written so far and the announced total, 0 when unknown.
type Progress func(done, total int64)

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*]`)

const maxSafeNameLen = 50

// SafeFileName replaces characters that are not allowed in file names with "_"
// and truncates the result to 50 characters.
func SafeFileName(name string) string {
	safe := []rune(unsafeFileChars.ReplaceAllString(name, "_"))
	if len(safe) > maxSafeNameLen {
		safe = safe[:maxSafeNameLen]
	}
	return string(safe)
}

// OutputPath is the deterministic location of a client's statement. It always
// stays inside outputDir, separators in the id are replaced like in names.
func OutputPath(outputDir, clientName, clientId string) string {
	safeId := unsafeFileChars.ReplaceAllString(clientId, "_")
	return filepath.Join(outputDir, fmt.Sprintf("%s_Statement_%s.pdf", SafeFileName(clientName), safeId))
}

// FallbackTransactionCount is the size of the synthetic transaction id range
// requested when a statement page lists no transactions.
const FallbackTransactionCount = 30000

var fallbackTransactions = sync.OnceValue(func() []string {
	ids := make([]string, FallbackTransactionCount)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids
})

// FallbackTransactions returns the ids 0..29999. The returned slice is shared
// and must not be modified.
func FallbackTransactions() []string {
	return fallbackTransactions()
}

// Session is the part of the booking session the pipeline drives.
//
// note: fault injection point
type Session interface {
	StatementPage(ctx context.Context, clientId string) ([]byte, error)
	Transactions(page []byte) ([]string, bool)
	RequestReport(ctx context.Context, req booking.ReportRequest) (string, error)
	ControlId(ctx context.Context, reportId string) (string, error)
	OpenExport(ctx context.Context, controlId, clientName string) (*booking.Export, error)
}

// CancelSignal is polled between chunks of a download.
type CancelSignal interface {
	Cancelled() bool
}
