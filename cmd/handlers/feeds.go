package handlers

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"newsbrief/internal/config"
)

// NewFeedsCmd creates the feeds inspection command.
func NewFeedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Inspect configured feed sources",
	}

	cmd.AddCommand(newFeedsListCmd())
	return cmd
}

func newFeedsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured feed sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			sources, err := config.LoadSources(cfg.Feeds.SourcesFile)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORY\tPRIORITY\tURL")
			for _, s := range sources {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Category, s.Priority, s.URL)
			}
			return w.Flush()
		},
	}
}
