package commands

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/history"
	"github.com/kehinde-elelu/aimechanics/pkg/inference"
	"github.com/kehinde-elelu/aimechanics/pkg/registry"
	"github.com/kehinde-elelu/aimechanics/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve classification over HTTP",
	Long: `Serve the current model over HTTP.

Endpoints:
  POST /v1/classify        multipart upload, field "file"
  POST /v1/classify/path   form field "file_path"
  GET  /v1/model           serving model
  POST /v1/model/reload    load the registry's current model
  GET  /healthz            liveness

The server starts without a model when none is current and answers 503
until one is reloaded.

Example:
  aimechanics serve --addr :8000
  curl -F file=@pump.wav localhost:8000/v1/classify`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		sc := cfg.Serve
		if cmd.Flags().Changed("addr") {
			sc.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("upload-dir") {
			sc.UploadDir, _ = cmd.Flags().GetString("upload-dir")
		}
		if cmd.Flags().Changed("history-db") {
			sc.HistoryDB, _ = cmd.Flags().GetString("history-db")
		}

		ctx, cancel := signalContext(cmd)
		defer cancel()

		source := registrySource{cfg: cfg.Registry}
		m, rec, err := source.LoadCurrent(ctx)
		switch {
		case err == nil:
			slog.Info("serve: loaded model", "id", rec.ID, "params", rec.Params.String())
		case errors.Is(err, registry.ErrNoCurrent):
			slog.Warn("serve: no current model, classification disabled until reload")
		default:
			return err
		}
		if m != nil {
			if err := m.CheckSchema(features.SchemaVersion, features.Dim); err != nil {
				return err
			}
		}

		var hist *history.Store
		if sc.HistoryDB != "" {
			if hist, err = history.Open(sc.HistoryDB); err != nil {
				return err
			}
			defer hist.Close()
		}

		engine := inference.New(m,
			inference.WithTargetSampleRate(cfg.Audio.TargetSampleRate),
			inference.WithLogger(slog.Default()))
		srv := server.New(server.Config{
			Addr:           sc.Addr,
			MaxUploadBytes: sc.MaxUploadBytes,
			UploadDir:      sc.UploadDir,
			PathRoot:       sc.PathRoot,
			Logger:         slog.Default(),
		}, engine, source, hist)
		return srv.ListenAndServe(ctx)
	},
}

var _ server.ModelSource = registrySource{}

func init() {
	serveCmd.Flags().String("addr", ":8000", "listen address")
	serveCmd.Flags().String("upload-dir", "", "keep uploaded recordings in this directory")
	serveCmd.Flags().String("history-db", "", "classification log database (default from config)")
}
