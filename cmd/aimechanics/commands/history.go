package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kehinde-elelu/aimechanics/pkg/cli"
	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/history"
)

type historyList []history.Entry

// Table implements cli.Tabular.
func (l historyList) Table() ([]string, [][]string) {
	styles := cli.NewStyles(cli.DefaultTheme)
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			styles.Label(e.Label),
			cli.FormatPercent(e.Confidence),
			cli.ShortID(e.ModelID),
			e.Source,
		})
	}
	return []string{"time", "label", "confidence", "model", "source"}, rows
}

type labelCounts map[condition.Class]int

// Table implements cli.Tabular.
func (c labelCounts) Table() ([]string, [][]string) {
	styles := cli.NewStyles(cli.DefaultTheme)
	rows := make([][]string, 0, len(c))
	for _, class := range condition.All() {
		rows = append(rows, []string{styles.Label(class), fmt.Sprint(c[class])})
	}
	return []string{"label", "count"}, rows
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show served classifications",
	Long: `Show the most recent classifications logged by 'aimechanics serve'.

Examples:
  aimechanics history --limit 50
  aimechanics history --counts`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		counts, _ := cmd.Flags().GetBool("counts")
		path := getConfig().Serve.HistoryDB
		if path == "" {
			return fmt.Errorf("serve.history_db is not configured")
		}

		store, err := history.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		if counts {
			c, err := store.CountByLabel(cmd.Context())
			if err != nil {
				return err
			}
			return outputResult(labelCounts(c), cli.FormatTable)
		}
		entries, err := store.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 && !structuredOutput() {
			cli.PrintInfo("No classifications logged in %s", path)
			return nil
		}
		return outputResult(historyList(entries), cli.FormatTable)
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of entries")
	historyCmd.Flags().Bool("counts", false, "count classifications per label instead")
}
