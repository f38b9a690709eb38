package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kehinde-elelu/aimechanics/pkg/cli"
	"github.com/kehinde-elelu/aimechanics/pkg/registry"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	outputJSON   bool
	query        string
	verbose      bool

	// Global configuration
	globalConfig *cli.AppConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aimechanics",
	Short: "Equipment-sound condition classifier",
	Long: `aimechanics - classify machine recordings as normal, early_fault or failure.

A model is trained from a directory of labeled WAV recordings:

  <dataset>/normal/*.wav
  <dataset>/early_fault/*.wav
  <dataset>/failure/*.wav

Training extracts acoustic features, grid-searches a calibrated SVM with
stratified cross-validation, evaluates it on a held-out split and stores it
in the model registry. The current model is then used by classify and serve.

Examples:
  # Generate a synthetic corpus and train on it
  aimechanics generate data/synthetic
  aimechanics train data/synthetic

  # Classify a recording with the current model
  aimechanics classify pump.wav

  # Serve the current model
  aimechanics serve --addr :8000

  # Scores of every registered model
  aimechanics models list --json --query '.[] | {id, cv_score}'
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.aimechanics/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: yaml, json, table or raw")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().StringVarP(&query, "query", "q", "", "jq expression applied to the output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func initConfig() {
	var err error
	globalConfig, err = cli.LoadAppConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getConfig returns the global configuration
func getConfig() *cli.AppConfig {
	return globalConfig
}

// structuredOutput reports whether the user asked for machine-readable
// output instead of the default rendering.
func structuredOutput() bool {
	return outputJSON || outputFormat != "" || query != ""
}

// outputResult writes result in the requested format, or def when no
// format was requested.
func outputResult(result any, def cli.OutputFormat) error {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format == "" {
		format = def
	}
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		Query:  query,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// openRegistry opens the configured model registry.
func openRegistry() (*registry.Registry, error) {
	return registry.Open(getConfig().Registry, registry.WithLogger(slog.Default()))
}
