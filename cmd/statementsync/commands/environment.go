package commands

import (
	"context"
	"os"

	"statementsync/internal/booking"
	"statementsync/internal/components/chrono"
	"statementsync/internal/components/telemetry"
	"statementsync/internal/config"
	"statementsync/internal/directory"
	"statementsync/pkg/restyutil"

	"github.com/jedib0t/go-pretty/v6/table"
)

var tel telemetry.API = telemetry.SlogAPI{}

// environment is everything a command needs to talk to the booking site.
type environment struct {
	cfg       config.Config
	session   *booking.Session
	cookies   booking.CookieStore
	directory directory.Cache
	time      chrono.TimeAPI
}

func newEnvironment(cfg config.Config, dumpDir string) (environment, error) {
	var dump restyutil.InstrumentOutput
	if dumpDir != "" {
		out, err := restyutil.NewFilesystemOutput(dumpDir)
		if err != nil {
			return environment{}, err
		}
		dump = out
	}

	session, err := booking.NewSession(booking.Options{
		BaseUrl:           cfg.BaseUrl,
		RequestsPerSecond: cfg.RequestsPerSecond,
		CloudflareBypass:  cfg.CloudflareBypass,
		HttpDump:          dump,
	}, tel)
	if err != nil {
		return environment{}, err
	}

	clock := chrono.NewStandardTime()
	return environment{
		cfg:       cfg,
		session:   session,
		cookies:   booking.NewCookieStore(cfg.SessionFile, tel),
		directory: directory.NewCache(cfg.CustomersCacheFile, clock, tel),
		time:      clock,
	}, nil
}

// authenticate logs in for commands that do not go through a run, falling back
// to the stored session like a run does.
func (e environment) authenticate(ctx context.Context) error {
	err := e.session.Login(ctx, e.cfg.Username, e.cfg.Password)
	if err == nil {
		e.cookies.Save(e.session)
		return nil
	}
	if e.cookies.Load(e.session) {
		tel.ReportWarning("commands.authenticate", "login failed, using the stored session", err)
		return nil
	}
	return err
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
