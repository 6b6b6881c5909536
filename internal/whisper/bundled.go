package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/fmueller/longscribe/internal/transcript"
	"go.uber.org/zap"
)

const EnginePathEnv = "LONGSCRIBE_WHISPER_PATH"

type BundledEngine struct {
	Executable string
	Logger     *zap.Logger
}

func NewBundledEngine(logger *zap.Logger) (*BundledEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv(EnginePathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", EnginePathEnv, err)
		}
		return &BundledEngine{Executable: override, Logger: logger}, nil
	}

	selfExe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve longscribe executable path: %w", err)
	}

	whisperExe, err := ResolveBundledEnginePath(selfExe)
	if err != nil {
		found, lookErr := exec.LookPath(engineBinaryName())
		if lookErr != nil {
			return nil, err
		}
		whisperExe = found
	}

	return &BundledEngine{Executable: whisperExe, Logger: logger}, nil
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("whisper engine not found near %s or on PATH; set %s or install %s under ../libexec/whisper/", selfExecutable, EnginePathEnv, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := fmt.Sprintf("%s_%s", runtime.GOOS, normalizeArch(runtime.GOARCH))

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (b *BundledEngine) Name() string {
	return "whisper.cpp"
}

func (b *BundledEngine) Transcribe(ctx context.Context, req Request) ([]transcript.RawSegment, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return nil, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("model path is required")
	}

	if err := ensureExecutable(b.Executable); err != nil {
		return nil, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	outDir, err := os.MkdirTemp("", "longscribe-whisper-")
	if err != nil {
		return nil, fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	outBase := filepath.Join(outDir, "clip")

	args := []string{
		"-m", req.Model,
		"-f", req.AudioPath,
		"-bs", strconv.Itoa(beamSize(req.BeamSize)),
		"-ojf",
		"-of", outBase,
	}
	if lang := languageArg(req.Language); lang != "" {
		args = append(args, "-l", lang)
	}

	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	b.Logger.Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return nil, fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return nil, fmt.Errorf("whisper engine crashed with an illegal CPU instruction; "+
				"your CPU may lack required instruction set extensions; "+
				"set %s to a whisper-cli binary built for your CPU", EnginePathEnv)
		}
		return nil, fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
	}

	content, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	return parseFullJSON(content)
}

type cppOutput struct {
	Transcription []cppSegment `json:"transcription"`
}

type cppSegment struct {
	Offsets struct {
		From int64 `json:"from"`
		To   int64 `json:"to"`
	} `json:"offsets"`
	Text   string     `json:"text"`
	Tokens []cppToken `json:"tokens"`
}

type cppToken struct {
	Text string  `json:"text"`
	P    float64 `json:"p"`
}

// parseFullJSON reads whisper-cli -ojf output. whisper.cpp reports token
// probabilities but no segment log-probability or no-speech estimate, so the
// average log-probability is rebuilt from the text tokens and no-speech is 0.
const blankAudioMarker = "[BLANK_AUDIO]"

func parseFullJSON(data []byte) ([]transcript.RawSegment, error) {
	var out cppOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	segments := make([]transcript.RawSegment, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		// whisper.cpp annotates non-speech as a [BLANK_AUDIO] pseudo segment.
		if strings.EqualFold(strings.TrimSpace(seg.Text), blankAudioMarker) {
			continue
		}
		segments = append(segments, transcript.RawSegment{
			Start:      float64(seg.Offsets.From) / 1000,
			End:        float64(seg.Offsets.To) / 1000,
			Text:       seg.Text,
			AvgLogProb: avgTokenLogProb(seg.Tokens),
		})
	}
	return segments, nil
}

func avgTokenLogProb(tokens []cppToken) float64 {
	var sum float64
	var n int
	for _, tok := range tokens {
		if isSpecialToken(tok.Text) || tok.P <= 0 {
			continue
		}
		sum += math.Log(min(tok.P, 1))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func isSpecialToken(text string) bool {
	return strings.HasPrefix(text, "[_") || strings.HasPrefix(text, "<|")
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}

func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}
