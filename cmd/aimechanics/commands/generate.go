package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kehinde-elelu/aimechanics/pkg/cli"
	"github.com/kehinde-elelu/aimechanics/pkg/synth"
)

var generateCmd = &cobra.Command{
	Use:   "generate <dir>",
	Short: "Write a synthetic training corpus",
	Long: `Write simulated machine recordings in the corpus layout
<dir>/{normal,early_fault,failure}/*.wav.

Normal recordings are a steady harmonic hum. Early faults add an
intermittent high-frequency tone and impulses. Failures add strong noise,
modulation and dropouts.

Example:
  aimechanics generate data/synthetic --per-class 100 --seed 7`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := synth.DefaultOptions()
		var err error
		if opts.PerClass, err = cmd.Flags().GetInt("per-class"); err != nil {
			return err
		}
		if opts.Seed, err = cmd.Flags().GetUint64("seed"); err != nil {
			return err
		}
		if opts.SampleRate, err = cmd.Flags().GetInt("sample-rate"); err != nil {
			return err
		}
		if opts.MinDuration, err = cmd.Flags().GetFloat64("min-duration"); err != nil {
			return err
		}
		if opts.MaxDuration, err = cmd.Flags().GetFloat64("max-duration"); err != nil {
			return err
		}

		paths, err := synth.WriteDataset(args[0], opts)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		if structuredOutput() {
			return outputResult(map[string]any{"dir": args[0], "files": paths}, cli.FormatYAML)
		}
		cli.PrintSuccess("Wrote %d recordings to %s", len(paths), args[0])
		return nil
	},
}

func init() {
	def := synth.DefaultOptions()
	generateCmd.Flags().Int("per-class", def.PerClass, "recordings per class")
	generateCmd.Flags().Uint64("seed", def.Seed, "random seed")
	generateCmd.Flags().Int("sample-rate", def.SampleRate, "sample rate in Hz")
	generateCmd.Flags().Float64("min-duration", def.MinDuration, "shortest recording in seconds")
	generateCmd.Flags().Float64("max-duration", def.MaxDuration, "longest recording in seconds")
}
