package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fmueller/longscribe/internal/config"
	"github.com/fmueller/longscribe/internal/logging"
	"github.com/fmueller/longscribe/internal/metrics"
	"github.com/fmueller/longscribe/internal/platform"
	"github.com/fmueller/longscribe/internal/segment"
	"github.com/fmueller/longscribe/internal/version"
	"github.com/fmueller/longscribe/internal/whisper"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

var ErrInputNotFound = errors.New("input audio not found")

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	logFile    string
	configPath string
	workDir    string

	model        string
	modelDir     string
	language     string
	autoDownload bool
	beamSize     int
	engine       string
	device       string
	computeType  string
	baseURL      string
	silenceGate  bool
	silenceDBFS  float64

	segParams   segment.Params
	formats     []string
	metricsFile string
	rules       string

	cfg      config.Config
	runID    string
	logger   *zap.Logger
	closeLog func() error
	metrics  *metrics.Metrics

	openSourceFn func(path string) (clipSource, error)
	engineFn     func(ctx context.Context) (whisper.Engine, whisper.Request, error)
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newAppState() *appState {
	defaults := config.Default()
	t := defaults.Transcription

	app := &appState{
		workDir:      ".",
		model:        t.Model,
		language:     t.Language,
		autoDownload: t.AutoDownload,
		beamSize:     t.BeamSize,
		engine:       t.Engine,
		device:       t.Device,
		computeType:  t.ComputeType,
		baseURL:      t.BaseURL,
		silenceGate:  t.SilenceGate,
		silenceDBFS:  t.SilenceGateDB,
		segParams:    defaults.Segmentation,
		formats:      defaults.Output.Formats,
	}
	app.openSourceFn = openWAVSource
	app.engineFn = app.newEngine
	return app
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "longscribe",
		Short:         "Transcribe long recordings in resumable, silence-aligned clips",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app.runID = uuid.NewString()
			logger, closeLog, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs, File: app.logFile})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger.With(zap.String("run_id", app.runID))
			app.closeLog = closeLog

			cfg, err := app.resolveConfig(cmd)
			if err != nil {
				_ = app.closeLogger()
				return err
			}
			app.cfg = cfg
			app.metrics = metrics.New()
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindWorkspaceFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindLanguageAndModelDownloadFlags(cmd, app)
	bindEngineFlags(cmd, app)
	bindSilenceFlags(cmd, app)
	bindSegmentationFlags(cmd, app)
	bindOutputFlags(cmd, app)

	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newSegmentCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newMergeCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newNormalizeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())
	closeLoggerAfterRun(cmd, app)

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().StringVar(&app.logFile, "log-file", app.logFile, "Also write JSON logs to this size-rotated file")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindWorkspaceFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.configPath, "config", app.configPath, "YAML configuration file; explicit flags override it")
	cmd.PersistentFlags().StringVar(&app.workDir, "work-dir", app.workDir, "Directory holding the pipeline state, clips, cache and outputs")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.model, "model", app.model, "Model name or model file path")
	cmd.PersistentFlags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
}

func bindLanguageAndModelDownloadFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.language, "language", app.language, "Language code (auto|en|hi|...) for transcription")
	cmd.PersistentFlags().BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing models")
	cmd.PersistentFlags().IntVar(&app.beamSize, "beam-size", app.beamSize, "Beam search width")
}

func bindEngineFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.engine, "engine", app.engine, "Speech engine: "+strings.Join(config.Engines(), "|"))
	cmd.PersistentFlags().StringVar(&app.device, "device", app.device, "faster-whisper device (auto|cpu|cuda)")
	cmd.PersistentFlags().StringVar(&app.computeType, "compute-type", app.computeType, "faster-whisper compute type (default|int8|float16|...)")
	cmd.PersistentFlags().StringVar(&app.baseURL, "base-url", app.baseURL, "Base URL of an OpenAI-compatible transcription API")
}

func bindSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Skip the engine for clips that are silent throughout")
	cmd.PersistentFlags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

func bindSegmentationFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().Int64Var(&app.segParams.MaxClipMS, "max-clip-ms", app.segParams.MaxClipMS, "Longest clip in milliseconds")
	cmd.PersistentFlags().Int64Var(&app.segParams.MinClipMS, "min-clip-ms", app.segParams.MinClipMS, "Earliest silence-aligned cut in milliseconds")
	cmd.PersistentFlags().Int64Var(&app.segParams.MinSilenceMS, "min-silence-ms", app.segParams.MinSilenceMS, "Shortest silence that may be cut at, in milliseconds")
	cmd.PersistentFlags().Float64Var(&app.segParams.SilenceThreshDB, "silence-thresh-db", app.segParams.SilenceThreshDB, "Segmentation silence threshold in dBFS")
	cmd.PersistentFlags().Int64Var(&app.segParams.KeepSilenceMS, "keep-silence-ms", app.segParams.KeepSilenceMS, "Silence kept after each cut, in milliseconds")
}

func bindOutputFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringSliceVar(&app.formats, "formats", app.formats, "Transcript formats to write: json,text,srt,vtt")
	cmd.PersistentFlags().StringVar(&app.metricsFile, "metrics-file", app.metricsFile, "Write Prometheus metrics to this textfile after the run")
}

func bindRulesFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.rules, "rules", app.rules, "YAML normalization rule table")
}

// resolveConfig layers explicitly set flags over the config file (or the
// defaults when there is none).
func (a *appState) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if strings.TrimSpace(a.configPath) != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	override := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	t := &cfg.Transcription
	override("engine", func() { t.Engine = a.engine })
	override("model", func() { t.Model = a.model })
	override("language", func() { t.Language = a.language })
	override("beam-size", func() { t.BeamSize = a.beamSize })
	override("auto-download", func() { t.AutoDownload = a.autoDownload })
	override("device", func() { t.Device = a.device })
	override("compute-type", func() { t.ComputeType = a.computeType })
	override("base-url", func() { t.BaseURL = a.baseURL })
	override("silence-gate", func() { t.SilenceGate = a.silenceGate })
	override("silence-threshold-dbfs", func() { t.SilenceGateDB = a.silenceDBFS })

	s := &cfg.Segmentation
	override("max-clip-ms", func() { s.MaxClipMS = a.segParams.MaxClipMS })
	override("min-clip-ms", func() { s.MinClipMS = a.segParams.MinClipMS })
	override("min-silence-ms", func() { s.MinSilenceMS = a.segParams.MinSilenceMS })
	override("silence-thresh-db", func() { s.SilenceThreshDB = a.segParams.SilenceThreshDB })
	override("keep-silence-ms", func() { s.KeepSilenceMS = a.segParams.KeepSilenceMS })

	override("formats", func() { cfg.Output.Formats = a.formats })
	override("metrics-file", func() { cfg.Output.MetricsFile = a.metricsFile })
	override("rules", func() { cfg.Normalize.Rules = a.rules })

	t.Language = sanitizeLanguage(t.Language)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// closeLoggerAfterRun releases the logger when a subcommand returns. Cobra
// skips post-run hooks once RunE fails, so the close lives in RunE itself.
func closeLoggerAfterRun(root *cobra.Command, app *appState) {
	for _, sub := range root.Commands() {
		run := sub.RunE
		if run == nil {
			continue
		}
		sub.RunE = func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if closeErr := app.closeLogger(); err == nil {
					err = closeErr
				}
			}()
			return run(cmd, args)
		}
	}
}

func (a *appState) closeLogger() error {
	if a.closeLog == nil {
		return nil
	}
	closeLog := a.closeLog
	a.closeLog = nil
	return closeLog()
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
