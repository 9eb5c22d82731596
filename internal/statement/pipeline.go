package statement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"statementsync/internal/booking"
	"statementsync/internal/components/assert"
	"statementsync/internal/components/telemetry"
	"statementsync/internal/failure"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_pipeline_access_page  = "pipeline.access-page"
	report_pipeline_transactions = "pipeline.transactions"
	report_pipeline_run          = "pipeline.run"
)

// ChunkSize is the read size of a streamed export.
const ChunkSize = 8192

var tracer = otel.Tracer("statementsync/statement")

type Pipeline struct {
	session Session
	cancel  CancelSignal
	create  func(path string) (io.WriteCloser, error)
	tel     telemetry.API
}

func createFile(path string) (io.WriteCloser, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}
	return os.Create(path)
}

func NewPipeline(session Session, cancel CancelSignal, tel telemetry.API) Pipeline {
	assert.NotNil(session, "session")
	assert.NotNil(cancel, "cancel")
	assert.NotNil(tel, "tel")
	return Pipeline{
		session: session,
		cancel:  cancel,
		create:  createFile,
		tel:     telemetry.NewScopedAPI("statement", tel),
	}
}

// Run downloads the statement of one client. It never fails the caller, every
// outcome including a panic inside a stage is turned into a Result.
func (p Pipeline) Run(ctx context.Context, job Job, progress Progress) (result Result) {
	ctx, span := tracer.Start(ctx, "statement.run")
	span.SetAttributes(attribute.String("client_id", job.ClientId))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%v", r)
			p.tel.ReportBroken(report_pipeline_run, job.ClientId, result.Stage.String(), err)
			result = fail(result.Stage, failure.New(failure.Unknown, err), err.Error(), result.Path)
		}
		if !result.Ok {
			span.SetStatus(codes.Error, result.Message)
		}
	}()

	if p.cancel.Cancelled() {
		return fail(StageAccessPage, failure.ErrCancelled, MessageCancelled, "")
	}

	result.Stage = StageAccessPage
	page, err := p.session.StatementPage(ctx, job.ClientId)
	if err != nil {
		// the report request still goes out with the fallback transactions
		p.tel.ReportWarning(report_pipeline_access_page, job.ClientId, err)
		page = nil
	}

	result.Stage = StageExtractTransactions
	transactions, ok := p.session.Transactions(page)
	if !ok {
		p.tel.ReportWarning(report_pipeline_transactions, job.ClientId, "no transactions found, requesting fallback range")
		transactions = FallbackTransactions()
	}

	result.Stage = StageRequestReport
	reportId, err := p.session.RequestReport(ctx, booking.ReportRequest{
		ClientId:     job.ClientId,
		Token:        job.ReportToken,
		Transactions: transactions,
		FromDate:     job.FromDate,
		ToDate:       job.ToDate,
	})
	if err != nil {
		return fail(StageRequestReport, err, MessageReportFailed, "")
	}

	path := OutputPath(job.OutputDir, job.ClientName, job.ClientId)
	result.Path = path

	result.Stage = StageResolveControlId
	controlId, err := p.session.ControlId(ctx, reportId)
	if err != nil {
		return fail(StageResolveControlId, err, MessageDownloadFailed, path)
	}

	result.Stage = StageStreamPdf
	written, err := p.stream(ctx, controlId, job.ClientName, path, progress)
	if err != nil {
		message := MessageDownloadFailed
		if errors.Is(err, failure.ErrCancelled) || errors.Is(err, context.Canceled) {
			message = MessageCancelled
		}
		r := fail(StageStreamPdf, err, message, path)
		r.Bytes = written
		return r
	}

	return Result{
		Ok:      true,
		Message: MessageDone,
		Stage:   StageDone,
		Path:    path,
		Bytes:   written,
	}
}

func fail(stage Stage, err error, message, path string) Result {
	return Result{
		Message: message,
		Stage:   stage,
		Path:    path,
		Err:     err,
	}
}

func (p Pipeline) stream(ctx context.Context, controlId, clientName, path string, progress Progress) (int64, error) {
	export, err := p.session.OpenExport(ctx, controlId, clientName)
	if err != nil {
		return 0, err
	}
	defer export.Close()

	file, err := p.create(path)
	if err != nil {
		return 0, failure.New(failure.Stream, err)
	}
	closed := false
	defer func() {
		if !closed {
			file.Close()
		}
	}()

	buff := make([]byte, ChunkSize)
	var written int64
	for {
		if p.cancel.Cancelled() {
			return written, failure.New(failure.Stream, failure.ErrCancelled)
		}

		n, readErr := export.Body.Read(buff)
		if n > 0 {
			_, err = file.Write(buff[:n])
			if err != nil {
				return written, failure.New(failure.Stream, err)
			}
			written += int64(n)
			if progress != nil {
				progress(written, export.ContentLength)
			}
		}
		if errors.Is(readErr, io.EOF) {
			closed = true
			err = file.Close()
			if err != nil {
				return written, failure.New(failure.Stream, err)
			}
			return written, nil
		}
		if readErr != nil {
			return written, failure.New(failure.Stream, readErr)
		}
	}
}
