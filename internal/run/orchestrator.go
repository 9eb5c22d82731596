package run

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"statementsync/internal/balance"
	"statementsync/internal/booking"
	"statementsync/internal/components/assert"
	"statementsync/internal/components/chrono"
	"statementsync/internal/components/telemetry"
	"statementsync/internal/directory"
	"statementsync/internal/failure"
	"statementsync/internal/statement"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_orchestrator_login        = "orchestrator.login"
	report_orchestrator_directory    = "orchestrator.directory"
	report_orchestrator_report_token = "orchestrator.report-token"
	report_orchestrator_client       = "orchestrator.client"
	report_orchestrator_export       = "orchestrator.export"
)

// SummaryFile is the name of the summary written into the output directory.
const SummaryFile = "Summary.xlsx"

// DefaultThrottle is the pause between two clients.
const DefaultThrottle = 500 * time.Millisecond

var tracer = otel.Tracer("statementsync/run")

type Request struct {
	ClientIds []string
	Username  string
	Password  string
	FromDate  string
	ToDate    string
	OutputDir string
}

// ClientResult is the outcome of a single client of a run.
type ClientResult struct {
	Index     int
	ClientId  string
	Name      string
	Balance   balance.Balance
	Result    statement.Result
	// Retryable is set on failures a later run could get past, such as a
	// dropped connection or a timeout.
	Retryable bool
}

type Report struct {
	Clients []ClientResult
	Summary Summary
	// SummaryPath is empty if the summary was not exported.
	SummaryPath string
	// Cancelled is set when the run stopped before processing every client.
	Cancelled bool
	// ReusedSession is set when stored cookies stood in for a failed login.
	ReusedSession bool
}

type Options struct {
	Session   *booking.Session
	Cookies   booking.CookieStore
	Directory directory.Cache
	// Exporter can be nil, the summary is then only reported through the sink.
	Exporter Exporter
	Sink     Sink
	Cancel   *CancelToken
	Time     chrono.TimeAPI
	// Throttle defaults to DefaultThrottle, a negative value disables it.
	Throttle time.Duration
}

// Orchestrator drives a whole run over one authenticated session. It is not
// safe for concurrent use, one run at a time.
type Orchestrator struct {
	session   *booking.Session
	cookies   booking.CookieStore
	directory directory.Cache
	exporter  Exporter
	sink      Sink
	cancel    *CancelToken
	time      chrono.TimeAPI
	throttle  time.Duration
	balances  balance.Resolver
	pipeline  statement.Pipeline
	tel       telemetry.API
}

func NewOrchestrator(opts Options, tel telemetry.API) *Orchestrator {
	assert.NotNil(opts.Session, "session")
	assert.NotNil(opts.Sink, "sink")
	assert.NotNil(opts.Cancel, "cancel")
	assert.NotNil(opts.Time, "time")
	assert.NotNil(tel, "tel")

	throttle := opts.Throttle
	if throttle == 0 {
		throttle = DefaultThrottle
	}
	if throttle < 0 {
		throttle = 0
	}

	return &Orchestrator{
		session:   opts.Session,
		cookies:   opts.Cookies,
		directory: opts.Directory,
		exporter:  opts.Exporter,
		sink:      opts.Sink,
		cancel:    opts.Cancel,
		time:      opts.Time,
		throttle:  throttle,
		balances:  balance.NewResolver(opts.Session, tel),
		pipeline:  statement.NewPipeline(opts.Session, opts.Cancel, tel),
		tel:       telemetry.NewScopedAPI("run", tel),
	}
}

// Run resets the cancel token and processes every requested client in order.
// Only an authentication failure is returned as an error, every other failure
// is recorded in the report and the sink.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Report, error) {
	o.cancel.Reset()
	return o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req Request) (Report, error) {
	ctx, span := tracer.Start(ctx, "run")
	defer span.End()

	var report Report

	reused, err := o.authenticate(ctx, req.Username, req.Password)
	if err != nil && failure.KindOf(err).Fatal() {
		span.SetStatus(codes.Error, err.Error())
		message := "Login failed: check your credentials"
		if failure.Retryable(err) {
			message = "Login failed: the site could not be reached"
		}
		o.sink.Log(Entry{Message: message, Severity: SeverityError})
		return report, err
	}
	report.ReusedSession = reused

	dir, err := o.directory.GetAll(ctx, o.session)
	if err != nil {
		o.tel.ReportWarning(report_orchestrator_directory, err)
		o.sink.Log(Entry{
			Message:  fmt.Sprintf("Client list incomplete (%d names): %v", dir.Len(), err),
			Severity: SeverityWarning,
		})
	}

	token, err := o.session.ReportToken(ctx)
	if err != nil {
		o.tel.ReportWarning(report_orchestrator_report_token, err)
		token = ""
	}
	if booking.IsStatus(err, http.StatusUnauthorized) {
		o.sink.Log(Entry{
			Message:  "The site rejected the session, statements will likely fail",
			Severity: SeverityWarning,
		})
	}

	total := len(req.ClientIds)
	for i, clientId := range req.ClientIds {
		if o.cancel.Cancelled() || ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		result := o.client(ctx, req, dir, token, i+1, total, clientId)
		report.Clients = append(report.Clients, result)
		report.Summary.Add(
			Row{Id: clientId, Name: result.Name, Balance: result.Balance.Display},
			result.Balance.Amount,
			result.Result.Ok,
		)

		err = o.time.Sleep(ctx, o.throttle)
		if err != nil {
			o.tel.ReportDebug(report_orchestrator_client, "throttle interrupted", err)
		}
	}

	if o.exporter != nil {
		path := filepath.Join(req.OutputDir, SummaryFile)
		err = o.exporter.ExportSummary(ctx, path, report.Summary)
		if err != nil {
			err = failure.New(failure.Export, err)
			o.tel.ReportWarning(report_orchestrator_export, err)
			o.sink.Log(Entry{Message: fmt.Sprintf("Summary export failed: %v", err), Severity: SeverityWarning})
		} else {
			report.SummaryPath = path
		}
	}

	o.sink.Log(Entry{Message: report.Summary.FormatTotal(), Severity: SeveritySuccess})
	return report, nil
}

// authenticate logs in, falling back to stored cookies. It reports whether the
// stored session is being reused.
func (o *Orchestrator) authenticate(ctx context.Context, username, password string) (bool, error) {
	err := o.session.Login(ctx, username, password)
	if err == nil {
		o.cookies.Save(o.session)
		return false, nil
	}

	o.tel.ReportWarning(report_orchestrator_login, err)
	if o.cookies.Load(o.session) {
		o.sink.Log(Entry{Message: "Login failed, continuing with the stored session", Severity: SeverityWarning})
		return true, nil
	}
	return false, err
}

func (o *Orchestrator) client(
	ctx context.Context,
	req Request,
	dir directory.Directory,
	token string,
	index, total int,
	clientId string,
) ClientResult {
	ctx, span := tracer.Start(ctx, "run.client")
	span.SetAttributes(attribute.String("client_id", clientId))
	defer span.End()

	name := dir.Name(clientId)
	bal := o.balances.Resolve(ctx, clientId, req.FromDate)
	prefix := fmt.Sprintf("[%d/%d] %s - Due: %s", index, total, name, bal.Display)

	result := o.pipeline.Run(ctx, statement.Job{
		ClientId:    clientId,
		ClientName:  name,
		FromDate:    req.FromDate,
		ToDate:      req.ToDate,
		OutputDir:   req.OutputDir,
		ReportToken: token,
	}, func(done, size int64) {
		var percent float64
		if size > 0 {
			percent = float64(done) / float64(size) * 100
		}
		o.sink.Progress(Progress{
			Index:    index,
			Total:    total,
			ClientId: clientId,
			Name:     name,
			Balance:  bal.Display,
			Percent:  percent,
		})
		o.sink.Log(Entry{
			Message:  fmt.Sprintf("%s - Downloading: %.0f%%", prefix, percent),
			Severity: SeverityInfo,
			ClientId: clientId,
		})
	})

	severity := SeveritySuccess
	retryable := false
	if !result.Ok {
		severity = SeverityError
		retryable = failure.Retryable(result.Err)
		span.SetStatus(codes.Error, result.Message)
		span.SetAttributes(attribute.Bool("retryable", retryable))
		o.tel.ReportWarning(report_orchestrator_client, clientId, result.Stage.String(), result.Err, "retryable", retryable)
	}
	o.sink.Log(Entry{
		Message:  fmt.Sprintf("%s - %s", prefix, result.Message),
		Severity: severity,
		ClientId: clientId,
	})

	return ClientResult{
		Index:     index,
		ClientId:  clientId,
		Name:      name,
		Balance:   bal,
		Result:    result,
		Retryable: retryable,
	}
}
