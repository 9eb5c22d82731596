package commands

import (
	"fmt"
	"strings"

	"statementsync/internal/balance"
	"statementsync/internal/run"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var balanceFromDate string

func init() {
	balanceCmd.Flags().StringVar(&balanceFromDate, "from", "", "Balance start date (dd/mm/yyyy), overrides from_date.")
	rootCmd.AddCommand(balanceCmd)
}

var balanceCmd = &cobra.Command{
	Use:   "balance <ids...>",
	Short: "Prints the outstanding balance of each client without downloading statements.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("from") {
			cfg.FromDate = balanceFromDate
		}

		ids := run.ParseClientIds(strings.Join(args, " "))
		env, err := newEnvironment(cfg, "")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		err = env.authenticate(ctx)
		if err != nil {
			return err
		}
		dir, err := env.directory.GetAll(ctx, env.session)
		if err != nil {
			fmt.Printf("Directory is incomplete: %v\n", err)
		}

		resolver := balance.NewResolver(env.session, tel)
		var summary run.Summary

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Name", "Balance"})
		for i, id := range ids {
			if i > 0 {
				err = env.time.Sleep(ctx, cfg.Throttle())
				if err != nil {
					return err
				}
			}
			b := resolver.Resolve(ctx, id, cfg.FromDate)
			name := dir.Name(id)
			summary.Add(run.Row{Id: id, Name: name, Balance: b.Display}, b.Amount, b.Available())
			t.AppendRow(table.Row{id, name, b.Display})
		}
		t.AppendFooter(table.Row{"", "", summary.FormatTotal()})
		t.Render()
		return nil
	},
}
