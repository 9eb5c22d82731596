package commands

import (
	"fmt"
	"os"
	"strings"

	"statementsync/internal/export"
	"statementsync/internal/run"
	"statementsync/internal/statement"
	"statementsync/pkg/osutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	runIdsFile  string
	runFromDate string
	runToDate   string
	runOutput   string
	runDumpHttp string
)

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&runIdsFile, "ids-file", "", "Read client ids from a file (separated by newlines, commas or spaces).")
	flags.StringVar(&runFromDate, "from", "", "Statement start date (dd/mm/yyyy), overrides from_date.")
	flags.StringVar(&runToDate, "to", "", "Statement end date (dd/mm/yyyy), overrides to_date.")
	flags.StringVar(&runOutput, "out", "", "Output directory, overrides output_dir.")
	flags.StringVar(&runDumpHttp, "dump-http", "", "Write every HTTP exchange into this directory.")
	rootCmd.AddCommand(runCmd)
}

func readClientIds(args []string) ([]string, error) {
	input := strings.Join(args, " ")
	if runIdsFile != "" {
		content, err := os.ReadFile(runIdsFile)
		if err != nil {
			return nil, err
		}
		input += "\n" + string(content)
	}
	return run.ParseClientIds(input), nil
}

var runCmd = &cobra.Command{
	Use:   "run [ids...] [--ids-file <path>] [--from <date>] [--to <date>] [--out <dir>]",
	Short: "Downloads the statement PDF and balance of every given client and writes a summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("from") {
			cfg.FromDate = runFromDate
		}
		if flags.Changed("to") {
			cfg.ToDate = runToDate
		}
		if flags.Changed("out") {
			cfg.OutputDir = runOutput
		}

		ids, err := readClientIds(args)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("no client ids given")
		}

		env, err := newEnvironment(cfg, runDumpHttp)
		if err != nil {
			return err
		}

		var exporter run.Exporter = export.NewWorkbook()
		if cfg.Mail.Enabled() {
			exporter = export.WithMail(exporter, export.NewMailer(cfg.Mail), tel)
		}

		sink := newProgressSink(os.Stderr)
		cancel := &run.CancelToken{}
		orchestrator := run.NewOrchestrator(run.Options{
			Session:   env.session,
			Cookies:   env.cookies,
			Directory: env.directory,
			Exporter:  exporter,
			Sink:      sink,
			Cancel:    cancel,
			Time:      env.time,
			Throttle:  cfg.Throttle(),
		}, tel)

		ctx, stop := osutil.InterruptContext(cmd.Context(), func() {
			cancel.Cancel()
			sink.Log(run.Entry{
				Message:  "Stopping after the current chunk, press Ctrl+C again to abort.",
				Severity: run.SeverityWarning,
			})
		})
		defer stop()

		handle := run.Start(ctx, orchestrator, run.Request{
			ClientIds: ids,
			Username:  cfg.Username,
			Password:  cfg.Password,
			FromDate:  cfg.FromDate,
			ToDate:    cfg.ToDate,
			OutputDir: cfg.OutputDir,
		})
		report, err := handle.Wait()
		sink.Stop()
		if err != nil {
			return err
		}

		printReport(report)
		return nil
	},
}

func printReport(report run.Report) {
	t := newTable()
	t.AppendHeader(table.Row{"#", "ID", "Name", "Balance", "Status", "File"})
	for _, c := range report.Clients {
		file := ""
		if c.Result.Ok {
			file = c.Result.Path
		}
		status := c.Result.Message
		if c.Result.Stage != statement.StageDone {
			status = fmt.Sprintf("%s (%s)", c.Result.Message, c.Result.Stage)
		}
		t.AppendRow(table.Row{c.Index, c.ClientId, c.Name, c.Balance.Display, status, file})
	}
	t.AppendFooter(table.Row{"", "", "", report.Summary.FormatTotal()})
	t.Render()

	if report.SummaryPath != "" {
		fmt.Printf("Summary written to %s\n", report.SummaryPath)
	}
	if report.Cancelled {
		fmt.Println("Run was cancelled before every client was processed.")
	}

	var retry []string
	for _, c := range report.Clients {
		if c.Retryable {
			retry = append(retry, c.ClientId)
		}
	}
	if len(retry) > 0 {
		fmt.Printf("Failed on connection errors, worth running again: %s\n", strings.Join(retry, ","))
	}
}
