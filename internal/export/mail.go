package export

import (
	"context"
	"fmt"
	"net/smtp"
	"path/filepath"
	"strings"

	"statementsync/internal/components/assert"
	"statementsync/internal/components/telemetry"
	"statementsync/internal/run"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const report_mailer_send = "mailer.send"

var tracer = otel.Tracer("statementsync/export")

type MailConfig struct {
	Server   string   `json:"server"`
	Port     int      `json:"port"`
	From     string   `json:"from"`
	Password string   `json:"password"`
	To       []string `json:"to"`
}

// Enabled reports whether the config has enough to send anything.
func (c MailConfig) Enabled() bool {
	return c.Server != "" && c.From != "" && len(c.To) > 0
}

// Mailer sends a written summary file to a fixed list of recipients.
type Mailer struct {
	config MailConfig
}

func NewMailer(config MailConfig) Mailer {
	assert.NotEmptyStr(config.Server, "server")
	return Mailer{config: config}
}

func (m Mailer) message(path string, summary run.Summary) (*email.Email, error) {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Statement Sync <%s>", m.config.From)
	mail.To = m.config.To
	mail.Subject = fmt.Sprintf("Statement summary (%d clients)", len(summary.Rows))
	mail.Text = []byte(fmt.Sprintf(`The statement run has finished.

%s

The summary is attached as %s.`, summary.FormatTotal(), filepath.Base(path)))

	_, err := mail.AttachFile(path)
	if err != nil {
		return nil, err
	}
	return mail, nil
}

func (m Mailer) Send(ctx context.Context, path string, summary run.Summary) error {
	_, span := tracer.Start(ctx, "mailer.send")
	defer span.End()

	mail, err := m.message(path, summary)
	if err != nil {
		span.RecordError(err)
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err = mail.Send(addr, smtp.PlainAuth("", m.config.From, m.config.Password, m.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}

// Mailed exports through an inner exporter and mails the result. A mail that
// cannot be sent is reported but does not fail the export.
type Mailed struct {
	inner  run.Exporter
	mailer Mailer
	tel    telemetry.API
}

func WithMail(inner run.Exporter, mailer Mailer, tel telemetry.API) Mailed {
	assert.NotNil(inner, "inner")
	assert.NotNil(tel, "tel")
	return Mailed{inner: inner, mailer: mailer, tel: telemetry.NewScopedAPI("export", tel)}
}

func (m Mailed) ExportSummary(ctx context.Context, path string, summary run.Summary) error {
	err := m.inner.ExportSummary(ctx, path, summary)
	if err != nil {
		return err
	}
	err = m.mailer.Send(ctx, path, summary)
	if err != nil {
		m.tel.ReportWarning(report_mailer_send, err)
	}
	return nil
}
