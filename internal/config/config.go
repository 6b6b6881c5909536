// Package config loads the optional longscribe YAML configuration file.
// Command-line flags that are set explicitly take precedence over it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/fmueller/longscribe/internal/segment"
	"github.com/fmueller/longscribe/internal/transcript"
	"github.com/fmueller/longscribe/internal/whisper"
	"gopkg.in/yaml.v3"
)

const (
	EngineWhisperCPP    = "whisper.cpp"
	EngineFasterWhisper = "faster-whisper"
	EngineHTTP          = "http"
)

func Engines() []string {
	return []string{EngineWhisperCPP, EngineFasterWhisper, EngineHTTP}
}

type Config struct {
	Segmentation  segment.Params `yaml:"segmentation"`
	Transcription Transcription  `yaml:"transcription"`
	Output        Output         `yaml:"output"`
	Normalize     Normalize      `yaml:"normalize"`
}

type Transcription struct {
	Engine       string `yaml:"engine"`
	Model        string `yaml:"model"`
	Language     string `yaml:"language"`
	BeamSize     int    `yaml:"beam_size"`
	AutoDownload bool   `yaml:"auto_download"`

	// faster-whisper only.
	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`

	// http only.
	BaseURL string `yaml:"base_url"`

	SilenceGate   bool    `yaml:"silence_gate"`
	SilenceGateDB float64 `yaml:"silence_gate_db"`
}

type Output struct {
	Formats     []string `yaml:"formats"`
	MetricsFile string   `yaml:"metrics_file"`
}

type Normalize struct {
	Rules string `yaml:"rules"`
}

func Default() Config {
	return Config{
		Segmentation: segment.DefaultParams(),
		Transcription: Transcription{
			Engine:        EngineWhisperCPP,
			Model:         whisper.DefaultModel,
			Language:      "auto",
			BeamSize:      whisper.DefaultBeamSize,
			AutoDownload:  true,
			Device:        "auto",
			ComputeType:   "default",
			SilenceGateDB: -50,
		},
		Output: Output{
			Formats: []string{transcript.FormatJSON, transcript.FormatText},
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Segmentation.Validate(); err != nil {
		return err
	}

	t := c.Transcription
	if !slices.Contains(Engines(), t.Engine) {
		return fmt.Errorf("transcription.engine %q is not one of %s", t.Engine, strings.Join(Engines(), ", "))
	}
	if t.BeamSize <= 0 {
		return fmt.Errorf("transcription.beam_size must be greater than 0")
	}
	if strings.TrimSpace(t.Language) == "" {
		return fmt.Errorf("transcription.language cannot be empty (use \"auto\" to detect)")
	}
	if t.SilenceGateDB > 0 {
		return fmt.Errorf("transcription.silence_gate_db must be at most 0 dBFS")
	}

	if len(c.Output.Formats) == 0 {
		return fmt.Errorf("output.formats cannot be empty")
	}
	for i, f := range c.Output.Formats {
		if !slices.Contains(transcript.Formats(), f) {
			return fmt.Errorf("output.formats[%d]: unknown format %q", i, f)
		}
	}

	return nil
}
