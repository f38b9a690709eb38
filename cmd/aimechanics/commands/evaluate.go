package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kehinde-elelu/aimechanics/pkg/cli"
	"github.com/kehinde-elelu/aimechanics/pkg/corpus"
	"github.com/kehinde-elelu/aimechanics/pkg/train"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <dataset-dir>",
	Short: "Score a model against a labeled corpus",
	Long: `Classify every recording of a labeled corpus and print the
classification report and confusion matrix.

Examples:
  aimechanics evaluate data/holdout
  aimechanics evaluate data/holdout --model 3f2a --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("model")
		artifact, _ := cmd.Flags().GetString("artifact")
		workers, _ := cmd.Flags().GetInt("workers")

		ctx, cancel := signalContext(cmd)
		defer cancel()

		m, err := loadModel(ctx, id, artifact)
		if err != nil {
			return err
		}
		c, err := corpus.Load(ctx, args[0], corpus.Options{
			Workers:          workers,
			TargetSampleRate: getConfig().Audio.TargetSampleRate,
			Logger:           slog.Default(),
		})
		if err != nil {
			return err
		}
		report, err := train.Evaluate(m, c.Examples)
		if err != nil {
			return err
		}

		if structuredOutput() {
			return outputResult(map[string]any{
				"model":    m.ID,
				"report":   report,
				"failures": c.Failures,
			}, cli.FormatYAML)
		}
		fmt.Printf("model %s on %s\n", m.ID, args[0])
		fmt.Println(cli.RenderTable(reportTable(report)))
		fmt.Println(cli.RenderTable(confusionTable(report)))
		if len(c.Failures) > 0 {
			cli.PrintWarning("%d recordings could not be loaded", len(c.Failures))
		}
		return nil
	},
}

func init() {
	evaluateCmd.Flags().String("model", "", "registered model id or prefix (default: current)")
	evaluateCmd.Flags().String("artifact", "", "model artifact file instead of the registry")
	evaluateCmd.Flags().Int("workers", 0, "concurrent decoders (default: number of CPUs)")
}
