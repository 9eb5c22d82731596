package booking

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"statementsync/internal/failure"
)

const (
	report_session_statement_page = "session.statement-page"
	report_session_request_report = "session.request-report"
	report_session_control_id     = "session.control-id"
	report_session_export         = "session.export"
)

// StatementPage fetches the account statement page of a client.
func (s *Session) StatementPage(ctx context.Context, clientId string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutDefault)
	defer cancel()

	res, err := s.request(ctx, pageRequest, pathFinancialStatusPage).
		SetPathParam("clientId", clientId).
		Get(pathAccountStatementPage + "/{clientId}")
	if err != nil {
		s.tel.ReportDebug(report_session_statement_page, clientId, err)
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, statusError{Status: res.StatusCode()}
	}
	return res.Body(), nil
}

// Transactions extracts the selectable transaction ids from a statement page.
func (s *Session) Transactions(page []byte) ([]string, bool) {
	return s.extract.Transactions.Transactions(page)
}

type ReportRequest struct {
	ClientId     string
	Token        string
	Transactions []string
	FromDate     string
	ToDate       string
}

// RequestReport submits a statement report for generation and returns its report id.
// Errors are of kind failure.ReportGeneration.
func (s *Session) RequestReport(ctx context.Context, req ReportRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutReport)
	defer cancel()

	form := map[string][]string{
		fieldRequestVerificationToken: {req.Token},
		fieldTransactions:             {strings.Join(req.Transactions, ",")},
		"fromDate":                    {req.FromDate},
		"toDate":                      {req.ToDate},
		"AgencyId":                    {req.ClientId},
		"CurrencyId":                  {Currency},
		"BookingStatus":               {bookingStatus},
		"RoomStatus":                  {roomStatus},
	}
	res, err := s.formPost(ctx, pathFinancialStatusPage, contentTypeFormCharset, form).
		Post(pathReportGeneration)
	if err != nil {
		s.tel.ReportWarning(report_session_request_report, req.ClientId, err)
		return "", failure.New(failure.ReportGeneration, err)
	}
	if res.StatusCode() != http.StatusOK {
		return "", failure.New(failure.ReportGeneration, statusError{Status: res.StatusCode()})
	}

	reportId, ok := s.extract.ReportId.ReportId(res.Body())
	if !ok {
		return "", failure.New(failure.ReportGeneration, fmt.Errorf("no report id in response"))
	}
	return reportId, nil
}

// ControlId opens the report viewer for a generated report and returns the
// viewer's control id. Errors are of kind failure.ControlResolution.
func (s *Session) ControlId(ctx context.Context, reportId string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutViewer)
	defer cancel()

	res, err := s.request(ctx, pageRequest, pathFinancialStatusPage).
		SetQueryParam("id", reportId).
		Get(pathReportViewer)
	if err != nil {
		s.tel.ReportWarning(report_session_control_id, reportId, err)
		return "", failure.New(failure.ControlResolution, err)
	}
	controlId, ok := s.extract.ControlId.ControlId(res.Body())
	if !ok {
		return "", failure.New(
			failure.ControlResolution,
			fmt.Errorf("no control id in viewer page (status %d)", res.StatusCode()),
		)
	}
	return controlId, nil
}

// Export is an open PDF export stream, it must be closed by the caller.
type Export struct {
	Body io.ReadCloser
	// ContentLength is 0 when the site did not announce a length.
	ContentLength int64

	cancel context.CancelFunc
}

// NewExport wraps an already open body, used for exports that do not hold a request deadline.
func NewExport(body io.ReadCloser, contentLength int64) *Export {
	return &Export{Body: body, ContentLength: contentLength}
}

func (e *Export) Close() error {
	err := e.Body.Close()
	if e.cancel != nil {
		e.cancel()
	}
	return err
}

// OpenExport starts the PDF export of a report viewer instance. The request
// deadline covers the whole download, it is released by Export.Close.
// Errors are of kind failure.Stream.
func (s *Session) OpenExport(ctx context.Context, controlId, clientName string) (*Export, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutExport)

	res, err := s.request(ctx, pageRequest, pathFinancialStatusPage).
		SetDoNotParseResponse(true).
		SetQueryParams(map[string]string{
			"Culture":            "1033",
			"CultureOverrides":   "True",
			"UICulture":          "1033",
			"UICultureOverrides": "True",
			"ReportStack":        "1",
			"ControlID":          controlId,
			"Mode":               "true",
			"OpType":             "Export",
			"FileName":           QuoteFileName("Account statement: " + clientName),
			"ContentDisposition": "OnlyHtmlInline",
			"Format":             "PDF",
		}).
		Get(pathReportExport)
	if err != nil {
		cancel()
		s.tel.ReportWarning(report_session_export, controlId, err)
		return nil, failure.New(failure.Stream, err)
	}

	body := res.RawBody()
	if res.StatusCode() != http.StatusOK {
		if body != nil {
			body.Close()
		}
		cancel()
		return nil, failure.New(failure.Stream, statusError{Status: res.StatusCode()})
	}

	var length int64
	if res.RawResponse != nil && res.RawResponse.ContentLength > 0 {
		length = res.RawResponse.ContentLength
	}
	return &Export{Body: body, ContentLength: length, cancel: cancel}, nil
}

const upperhex = "0123456789ABCDEF"

// QuoteFileName percent-encodes every byte outside of ALPHA / DIGIT / "_.-~/",
// matching the encoding the report viewer expects inside its FileName parameter.
// The result is encoded again as a query value.
func QuoteFileName(name string) string {
	var out strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isQuoteSafe(c) {
			out.WriteByte(c)
			continue
		}
		out.WriteByte('%')
		out.WriteByte(upperhex[c>>4])
		out.WriteByte(upperhex[c&15])
	}
	return out.String()
}

func isQuoteSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '_', '.', '-', '~', '/':
		return true
	}
	return false
}
