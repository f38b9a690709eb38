package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kehinde-elelu/aimechanics/pkg/cli"
	"github.com/kehinde-elelu/aimechanics/pkg/corpus"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
	"github.com/kehinde-elelu/aimechanics/pkg/registry"
	"github.com/kehinde-elelu/aimechanics/pkg/train"
)

// trainSummary is the output of the train command.
type trainSummary struct {
	Model    *registry.Record `json:"model" yaml:"model"`
	Active   bool             `json:"active" yaml:"active"`
	Test     *train.Report    `json:"test" yaml:"test"`
	Duration string           `json:"duration" yaml:"duration"`
	Failures []corpus.Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Artifact string           `json:"artifact,omitempty" yaml:"artifact,omitempty"`
}

var trainCmd = &cobra.Command{
	Use:   "train <dataset-dir>",
	Short: "Train, evaluate and register a model",
	Long: `Train a classifier on a labeled corpus.

The corpus is split into a stratified training and test set. The
training set drives a cross-validated grid search over SVM
hyperparameters; the winning configuration is refit on the whole
training set, scored on the test set and stored in the registry. The new
model becomes current unless --no-activate is given.

Only one training run may write to a registry at a time.

Examples:
  aimechanics train data/synthetic
  aimechanics train data/plant --folds 10 --grid grid.yaml --no-activate`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	def := train.DefaultConfig()
	trainCmd.Flags().Int("folds", def.Folds, "cross-validation folds")
	trainCmd.Flags().Float64("variance", def.VarianceRetained, "PCA explained-variance target")
	trainCmd.Flags().Uint64("seed", def.Seed, "seed for splitting, folds and calibration")
	trainCmd.Flags().Float64("test-fraction", 0.25, "held-out share of the corpus")
	trainCmd.Flags().Int("workers", 0, "concurrent jobs (default: number of CPUs)")
	trainCmd.Flags().String("grid", "", "YAML or JSON file with the hyperparameter grid")
	trainCmd.Flags().Bool("no-activate", false, "register without making the model current")
	trainCmd.Flags().String("save", "", "also write the model artifact to this path")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := getConfig()
	tc := cfg.TrainConfig()
	tc.Logger = slog.Default()
	testFraction := cfg.Training.TestFraction

	flags := cmd.Flags()
	var err error
	if flags.Changed("folds") {
		if tc.Folds, err = flags.GetInt("folds"); err != nil {
			return err
		}
	}
	if flags.Changed("variance") {
		if tc.VarianceRetained, err = flags.GetFloat64("variance"); err != nil {
			return err
		}
	}
	if flags.Changed("seed") {
		if tc.Seed, err = flags.GetUint64("seed"); err != nil {
			return err
		}
	}
	if flags.Changed("test-fraction") {
		if testFraction, err = flags.GetFloat64("test-fraction"); err != nil {
			return err
		}
	}
	if flags.Changed("workers") {
		if tc.Workers, err = flags.GetInt("workers"); err != nil {
			return err
		}
	}
	if path, _ := flags.GetString("grid"); path != "" {
		var g train.Grid
		if err := cli.LoadFile(path, &g); err != nil {
			return fmt.Errorf("load grid: %w", err)
		}
		tc.Grid = g
	}
	noActivate, _ := flags.GetBool("no-activate")
	savePath, _ := flags.GetString("save")

	ctx, cancel := signalContext(cmd)
	defer cancel()

	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()
	unlock, err := reg.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	start := time.Now()
	dir := args[0]
	c, err := corpus.Load(ctx, dir, corpus.Options{
		Workers:          tc.Workers,
		TargetSampleRate: cfg.Audio.TargetSampleRate,
		Logger:           slog.Default(),
	})
	if err != nil {
		return err
	}
	if len(c.Failures) > 0 {
		cli.PrintWarning("%d recordings could not be loaded", len(c.Failures))
	}

	trainSet, testSet, err := train.Split(c.Examples, testFraction, tc.Seed)
	if err != nil {
		return err
	}
	slog.Info("train: corpus split", "train", len(trainSet), "test", len(testSet))

	m, err := train.Train(ctx, trainSet, tc)
	if err != nil {
		logDiagnostics(err)
		return err
	}
	report, err := train.Evaluate(m, testSet)
	if err != nil {
		return err
	}

	source := dir
	if abs, err := filepath.Abs(dir); err == nil {
		source = abs
	}
	rec, err := reg.Put(ctx, m, registry.PutOptions{
		Source: source,
		Metrics: map[string]float64{
			"cv_weighted_f1":   m.Selection.Score,
			"test_accuracy":    report.Accuracy,
			"test_weighted_f1": report.WeightedF1,
			"test_macro_f1":    report.MacroF1,
		},
		Activate: !noActivate,
	})
	if err != nil {
		return err
	}
	if savePath != "" {
		if err := model.SaveFile(savePath, m); err != nil {
			return err
		}
	}

	summary := trainSummary{
		Model:    rec,
		Active:   !noActivate,
		Test:     report,
		Duration: cli.FormatDuration(time.Since(start)),
		Failures: c.Failures,
		Artifact: savePath,
	}
	if structuredOutput() {
		return outputResult(summary, cli.FormatYAML)
	}
	fmt.Println(cli.RenderTable(reportTable(report)))
	cli.PrintSuccess("Registered model %s (%s, cv weighted F1 %.3f, test accuracy %s) in %s",
		cli.ShortID(rec.ID), rec.Params, rec.CVScore, cli.FormatPercent(report.Accuracy), summary.Duration)
	if noActivate {
		cli.PrintInfo("Model is not current; activate it with 'aimechanics models use %s'", cli.ShortID(rec.ID))
	}
	return nil
}

// logDiagnostics logs what a failed training run had gathered.
func logDiagnostics(err error) {
	var (
		dataErr    *train.DataError
		convErr    *train.ConvergenceError
		abortedErr *train.AbortedError
		diag       train.Diagnostics
	)
	switch {
	case errors.As(err, &dataErr):
		diag = dataErr.Diagnostics
	case errors.As(err, &convErr):
		diag = convErr.Diagnostics
		if convErr.Refit != nil {
			slog.Error("train: selected configuration failed to refit", "params", convErr.Refit.String(), "error", convErr.Err)
		}
	case errors.As(err, &abortedErr):
		diag = abortedErr.Diagnostics
	default:
		return
	}
	counts := make(map[string]int, len(diag.ClassCounts))
	for c, n := range diag.ClassCounts {
		counts[c.String()] = n
	}
	slog.Error("train: run failed", "examples", diag.Examples, "classes", counts, "folds", diag.Folds)
	for _, g := range diag.Grid {
		if g.Error != "" {
			slog.Debug("train: grid cell", "params", g.Params.String(), "error", g.Error)
		}
	}
}
