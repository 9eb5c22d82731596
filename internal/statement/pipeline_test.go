package statement

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"statementsync/internal/booking"
	"statementsync/internal/booking/bookingtest"
	"statementsync/internal/components/telemetry"
	"statementsync/internal/failure"

	"github.com/stretchr/testify/require"
)

type cancelFlag struct {
	atomic.Bool
}

func (c *cancelFlag) Cancelled() bool {
	return c.Load()
}

func newTestPipeline(t *testing.T, server *bookingtest.Server) (Pipeline, *cancelFlag, *telemetry.RecordingAPI) {
	tel := &telemetry.RecordingAPI{}
	session, err := booking.NewSession(booking.Options{BaseUrl: server.URL}, tel)
	require.NoError(t, err)
	require.NoError(t, session.Login(context.Background(), server.Username, server.Password))

	cancel := &cancelFlag{}
	return NewPipeline(session, cancel, tel), cancel, tel
}

func testJob(t *testing.T, id, name string) Job {
	return Job{
		ClientId:    id,
		ClientName:  name,
		FromDate:    "01/01/2025",
		OutputDir:   t.TempDir(),
		ReportToken: bookingtest.ReportToken,
	}
}

func TestSafeFileName(t *testing.T) {
	require.Equal(t, "A_B_C", SafeFileName("A/B:C"))
	require.Equal(t, "a_b_c_d_e_f_g", SafeFileName(`a<b>c"d\e|f?g`))
	require.Equal(t, "x_y", SafeFileName("x*y"))

	long := strings.Repeat("ب", 60)
	require.Equal(t, strings.Repeat("ب", 50), SafeFileName(long))
}

func TestOutputPath(t *testing.T) {
	require.Equal(t, filepath.Join("out", "A_B_C_Statement_99.pdf"), OutputPath("out", "A/B:C", "99"))
	// deterministic
	require.Equal(t, OutputPath("out", "Acme", "555"), OutputPath("out", "Acme", "555"))

	escaped := OutputPath("out", "Acme", `../../etc\x`)
	require.Equal(t, filepath.Join("out", "Acme_Statement_.._.._etc_x.pdf"), escaped)
	require.Equal(t, "out", filepath.Dir(escaped))
}

func TestFallbackTransactions(t *testing.T) {
	ids := FallbackTransactions()
	require.Len(t, ids, FallbackTransactionCount)
	require.Equal(t, "0", ids[0])
	require.Equal(t, "29999", ids[len(ids)-1])
}

func TestRunSuccess(t *testing.T) {
	server := bookingtest.NewServer(t)
	pdf := bytes.Repeat([]byte("%PDF"), 5000)
	server.Clients["555"] = &bookingtest.Client{Transactions: []string{"1", "2"}, Pdf: pdf}
	pipeline, _, tel := newTestPipeline(t, server)
	job := testJob(t, "555", "Acme")

	var calls int
	var last, total int64
	result := pipeline.Run(context.Background(), job, func(done, size int64) {
		calls++
		require.GreaterOrEqual(t, done, last)
		last, total = done, size
	})

	require.True(t, result.Ok, result.Err)
	require.Equal(t, MessageDone, result.Message)
	require.Equal(t, StageDone, result.Stage)
	require.Equal(t, filepath.Join(job.OutputDir, "Acme_Statement_555.pdf"), result.Path)
	require.EqualValues(t, len(pdf), result.Bytes)
	require.Greater(t, calls, 0)
	require.EqualValues(t, len(pdf), last)
	require.EqualValues(t, len(pdf), total)

	content, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.Equal(t, pdf, content)
	require.Empty(t, tel.Reports("warning", report_pipeline_transactions))
}

func TestRunFallbackTransactions(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.Clients["7"] = &bookingtest.Client{FailStatementPage: true, Pdf: []byte("pdf")}
	pipeline, _, tel := newTestPipeline(t, server)

	result := pipeline.Run(context.Background(), testJob(t, "7", "Seven"), nil)
	require.True(t, result.Ok, result.Err)

	require.Len(t, tel.Reports("warning", report_pipeline_access_page), 1)
	require.Len(t, tel.Reports("warning", report_pipeline_transactions), 1)

	report := server.Requests("/Finance/ReportAccountStatement")[0]
	transactions := strings.Split(report.Form.Get("Transactions"), ",")
	require.Len(t, transactions, FallbackTransactionCount)
}

func TestRunReportFailed(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.Clients["1"] = &bookingtest.Client{Transactions: []string{"1"}, FailReport: true}
	pipeline, _, _ := newTestPipeline(t, server)

	result := pipeline.Run(context.Background(), testJob(t, "1", "One"), nil)
	require.False(t, result.Ok)
	require.Equal(t, MessageReportFailed, result.Message)
	require.Equal(t, StageRequestReport, result.Stage)
	require.True(t, failure.Is(result.Err, failure.ReportGeneration))
	require.Empty(t, server.Requests("/Reports/Viewer.aspx"))
}

func TestRunControlIdMissing(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.Clients["2"] = &bookingtest.Client{Transactions: []string{"1"}, OmitControlId: true}
	pipeline, _, _ := newTestPipeline(t, server)

	result := pipeline.Run(context.Background(), testJob(t, "2", "Two"), nil)
	require.False(t, result.Ok)
	require.Equal(t, MessageDownloadFailed, result.Message)
	require.True(t, failure.Is(result.Err, failure.ControlResolution))
	require.NoFileExists(t, result.Path)
}

type failingClose struct {
	bytes.Buffer
}

func (f *failingClose) Close() error {
	return errors.New("flush failed: no space left on device")
}

func TestRunCloseFailure(t *testing.T) {
	server := bookingtest.NewServer(t)
	server.Clients["555"] = &bookingtest.Client{Transactions: []string{"1"}, Pdf: []byte("%PDF-1.4")}
	pipeline, _, _ := newTestPipeline(t, server)
	out := &failingClose{}
	pipeline.create = func(string) (io.WriteCloser, error) {
		return out, nil
	}

	result := pipeline.Run(context.Background(), testJob(t, "555", "Acme"), nil)
	require.False(t, result.Ok)
	require.Equal(t, MessageDownloadFailed, result.Message)
	require.Equal(t, StageStreamPdf, result.Stage)
	require.True(t, failure.Is(result.Err, failure.Stream))
	require.ErrorContains(t, result.Err, "no space left on device")
	require.Equal(t, "%PDF-1.4", out.String())
}

func TestRunCancelledDuringStream(t *testing.T) {
	server := bookingtest.NewServer(t)
	pdf := bytes.Repeat([]byte{'x'}, ChunkSize*8)
	server.Clients["3"] = &bookingtest.Client{Transactions: []string{"1"}, Pdf: pdf}
	pipeline, cancel, _ := newTestPipeline(t, server)

	var chunks int
	result := pipeline.Run(context.Background(), testJob(t, "3", "Three"), func(done, total int64) {
		chunks++
		cancel.Store(true)
	})

	require.False(t, result.Ok)
	require.Equal(t, MessageCancelled, result.Message)
	require.Equal(t, StageStreamPdf, result.Stage)
	require.True(t, errors.Is(result.Err, failure.ErrCancelled))
	require.True(t, failure.Is(result.Err, failure.Stream))
	require.Equal(t, 1, chunks)
	require.LessOrEqual(t, result.Bytes, int64(ChunkSize))

	// partial file is left behind
	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	require.Equal(t, result.Bytes, info.Size())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	server := bookingtest.NewServer(t)
	pipeline, cancel, _ := newTestPipeline(t, server)
	cancel.Store(true)

	result := pipeline.Run(context.Background(), testJob(t, "4", "Four"), nil)
	require.False(t, result.Ok)
	require.Equal(t, MessageCancelled, result.Message)
	require.Empty(t, server.Requests("/Finance"))
}

type panickingSession struct{}

func (panickingSession) StatementPage(context.Context, string) ([]byte, error) {
	return nil, nil
}

func (panickingSession) Transactions([]byte) ([]string, bool) {
	return []string{"1"}, true
}

func (panickingSession) RequestReport(context.Context, booking.ReportRequest) (string, error) {
	return "00000000-0000-0000-0000-000000000000", nil
}

func (panickingSession) ControlId(context.Context, string) (string, error) {
	panic("viewer exploded")
}

func (panickingSession) OpenExport(context.Context, string, string) (*booking.Export, error) {
	return booking.NewExport(io.NopCloser(strings.NewReader("")), 0), nil
}

func TestRunRecoversPanic(t *testing.T) {
	tel := &telemetry.RecordingAPI{}
	pipeline := NewPipeline(panickingSession{}, &cancelFlag{}, tel)

	result := pipeline.Run(context.Background(), testJob(t, "5", "Five"), nil)
	require.False(t, result.Ok)
	require.Equal(t, "viewer exploded", result.Message)
	require.Equal(t, StageResolveControlId, result.Stage)
	require.Len(t, tel.Reports("broken", report_pipeline_run), 1)
}
