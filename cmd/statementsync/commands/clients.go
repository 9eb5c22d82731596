package commands

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "The maximum number of matches to print.")
	clientsCmd.AddCommand(refreshCmd)
	clientsCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(clientsCmd)
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Inspect the cached client directory.",
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Downloads the client directory and replaces the cache.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		env, err := newEnvironment(cfg, "")
		if err != nil {
			return err
		}
		err = env.authenticate(cmd.Context())
		if err != nil {
			return err
		}

		dir, err := env.directory.Download(cmd.Context(), env.session)
		if err != nil {
			fmt.Printf("Directory is incomplete: %v\n", err)
		}
		fmt.Printf("Cached %d clients in %s\n", dir.Len(), cfg.CustomersCacheFile)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy searches the client directory by name.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		env, err := newEnvironment(cfg, "")
		if err != nil {
			return err
		}

		dir, ok := env.directory.Load()
		if !ok || dir.Len() == 0 {
			err = env.authenticate(cmd.Context())
			if err != nil {
				return err
			}
			dir, err = env.directory.Download(cmd.Context(), env.session)
			if err != nil {
				fmt.Printf("Directory is incomplete: %v\n", err)
			}
		}

		matches := dir.Search(args[0], searchLimit)
		if len(matches) == 0 {
			fmt.Println("No matching clients.")
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Name", "Score"})
		for _, m := range matches {
			t.AppendRow(table.Row{m.Id, m.Name, strconv.FormatFloat(m.Score, 'f', 3, 64)})
		}
		t.Render()
		return nil
	},
}
