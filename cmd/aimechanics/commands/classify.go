package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kehinde-elelu/aimechanics/pkg/audio/wav"
	"github.com/kehinde-elelu/aimechanics/pkg/cli"
	"github.com/kehinde-elelu/aimechanics/pkg/inference"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
)

// classification is the structured output of one classified file.
type classification struct {
	File    string        `json:"file" yaml:"file"`
	ModelID string        `json:"model_id" yaml:"model_id"`
	Result  *model.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify <file.wav>...",
	Short: "Classify WAV recordings",
	Long: `Classify one or more WAV recordings with the current model, a
registered model (--model) or a model artifact file (--artifact).

Examples:
  aimechanics classify pump.wav
  aimechanics classify recordings/*.wav --json --query '.[] | select(.result.label != "normal") | .file'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("model")
		artifact, _ := cmd.Flags().GetString("artifact")

		ctx, cancel := signalContext(cmd)
		defer cancel()
		m, err := loadModel(ctx, id, artifact)
		if err != nil {
			return err
		}
		engine := inference.New(m,
			inference.WithTargetSampleRate(getConfig().Audio.TargetSampleRate),
			inference.WithLogger(slog.Default()))

		results := make([]classification, 0, len(args))
		failed := 0
		for _, path := range args {
			c := classification{File: path, ModelID: m.ID}
			res, err := classifyFile(engine, path)
			if err != nil {
				c.Error = err.Error()
				failed++
			} else {
				c.Result = res
			}
			results = append(results, c)
		}

		if structuredOutput() {
			if err := outputResult(results, cli.FormatYAML); err != nil {
				return err
			}
		} else {
			styles := cli.NewStyles(cli.DefaultTheme)
			for _, c := range results {
				if c.Error != "" {
					cli.PrintError("%s: %s", c.File, c.Error)
					continue
				}
				fmt.Println(styles.Result(c.File, c.Result))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be classified", failed, len(args))
		}
		return nil
	},
}

func classifyFile(engine *inference.Engine, path string) (*model.Result, error) {
	w, err := wav.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return engine.Classify(w.Samples, w.SampleRate)
}

func init() {
	classifyCmd.Flags().String("model", "", "registered model id or prefix (default: current)")
	classifyCmd.Flags().String("artifact", "", "model artifact file instead of the registry")
	classifyCmd.MarkFlagsMutuallyExclusive("model", "artifact")
}
