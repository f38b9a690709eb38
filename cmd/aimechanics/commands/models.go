package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kehinde-elelu/aimechanics/pkg/cli"
	"github.com/kehinde-elelu/aimechanics/pkg/registry"
)

// modelList is the output of models list.
type modelList struct {
	Current string            `json:"current,omitempty" yaml:"current,omitempty"`
	Models  []registry.Record `json:"models" yaml:"models"`
}

// Table implements cli.Tabular.
func (l modelList) Table() ([]string, [][]string) {
	headers := []string{"", "id", "created", "params", "cv f1", "test acc", "size"}
	rows := make([][]string, 0, len(l.Models))
	for _, r := range l.Models {
		mark := ""
		if r.ID == l.Current {
			mark = "*"
		}
		acc := "-"
		if v, ok := r.Metrics["test_accuracy"]; ok {
			acc = cli.FormatPercent(v)
		}
		rows = append(rows, []string{
			mark,
			cli.ShortID(r.ID),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Params.String(),
			fmt.Sprintf("%.3f", r.CVScore),
			acc,
			cli.FormatBytes(r.Size),
		})
	}
	return headers, rows
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage registered models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		records, err := reg.List(ctx)
		if err != nil {
			return err
		}
		list := modelList{Models: records}
		cur, err := reg.Current(ctx)
		switch {
		case err == nil:
			list.Current = cur.ID
		case !errors.Is(err, registry.ErrNoCurrent):
			return err
		}
		if len(records) == 0 && !structuredOutput() {
			cli.PrintInfo("No models registered yet; run 'aimechanics train <dataset-dir>'")
			return nil
		}
		return outputResult(list, cli.FormatTable)
	},
}

var modelsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a registered model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		id, err := reg.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		rec, err := reg.Get(ctx, id)
		if err != nil {
			return err
		}
		return outputResult(rec, cli.FormatYAML)
	},
}

var modelsUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Make a registered model current",
	Long: `Make a registered model current. Running servers pick it up on
POST /v1/model/reload.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		id, err := reg.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		if err := reg.SetCurrent(ctx, id); err != nil {
			return err
		}
		cli.PrintSuccess("Current model is now %s", id)
		return nil
	},
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a registered model and its artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		id, err := reg.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		cur, err := reg.Current(ctx)
		wasCurrent := err == nil && cur.ID == id
		if err := reg.Delete(ctx, id); err != nil {
			return err
		}
		cli.PrintSuccess("Deleted model %s", id)
		if wasCurrent {
			cli.PrintWarning("The deleted model was current; choose another with 'aimechanics models use'")
		}
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsUseCmd)
	modelsCmd.AddCommand(modelsDeleteCmd)
}
