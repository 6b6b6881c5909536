package whisper

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/fmueller/longscribe/internal/transcript"
	"go.uber.org/zap"
)

const PythonEnv = "LONGSCRIBE_PYTHON"

//go:embed assets/faster_whisper.py
var fasterWhisperScript string

// FasterWhisperEngine drives a single faster-whisper worker process that keeps
// the model loaded across clips. Requests are serialised; a cancelled request
// kills the worker and the next request starts a fresh one.
type FasterWhisperEngine struct {
	Python      string
	Device      string
	ComputeType string
	Logger      *zap.Logger

	mu     sync.Mutex
	worker *fwWorker
}

type fwWorker struct {
	model  string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  *bufio.Scanner
	stderr *bytes.Buffer
}

type fwRequest struct {
	Audio    string `json:"audio"`
	Language string `json:"language,omitempty"`
	BeamSize int    `json:"beam_size"`
}

type fwReply struct {
	Ready    bool                    `json:"ready"`
	Error    string                  `json:"error"`
	Language string                  `json:"language"`
	Segments []transcript.RawSegment `json:"segments"`
}

func NewFasterWhisperEngine(device, computeType string, logger *zap.Logger) *FasterWhisperEngine {
	if logger == nil {
		logger = zap.NewNop()
	}

	python := strings.TrimSpace(os.Getenv(PythonEnv))
	if python == "" {
		python = "python3"
	}

	return &FasterWhisperEngine{Python: python, Device: device, ComputeType: computeType, Logger: logger}
}

func (f *FasterWhisperEngine) Name() string {
	return "faster-whisper"
}

func (f *FasterWhisperEngine) Transcribe(ctx context.Context, req Request) ([]transcript.RawSegment, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return nil, errors.New("audio path is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	model := ModelName(req.Model)
	if f.worker != nil && f.worker.model != model {
		f.stopLocked()
	}
	if f.worker == nil {
		if err := f.startLocked(ctx, model); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(fwRequest{
		Audio:    req.AudioPath,
		Language: languageArg(req.Language),
		BeamSize: beamSize(req.BeamSize),
	})
	if err != nil {
		return nil, fmt.Errorf("encode helper request: %w", err)
	}
	if _, err := f.worker.stdin.Write(append(payload, '\n')); err != nil {
		f.stopLocked()
		return nil, fmt.Errorf("send helper request: %w", err)
	}

	reply, err := f.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("faster-whisper failed: %s", reply.Error)
	}

	f.Logger.Debug("faster-whisper reply", zap.String("language", reply.Language), zap.Int("segments", len(reply.Segments)))
	return reply.Segments, nil
}

// Close stops the worker process if one is running.
func (f *FasterWhisperEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	return nil
}

func (f *FasterWhisperEngine) startLocked(ctx context.Context, model string) error {
	args := []string{"-u", "-c", fasterWhisperScript, "--model", model}
	if f.Device != "" {
		args = append(args, "--device", f.Device)
	}
	if f.ComputeType != "" {
		args = append(args, "--compute-type", f.ComputeType)
	}

	cmd := exec.Command(f.Python, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("helper stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.Logger.Debug("starting faster-whisper helper", zap.String("python", f.Python), zap.String("model", model))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start faster-whisper helper with %s: %w", f.Python, err)
	}

	lines := bufio.NewScanner(stdout)
	lines.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	f.worker = &fwWorker{model: model, cmd: cmd, stdin: stdin, lines: lines, stderr: &stderr}

	reply, err := f.readLocked(ctx)
	if err != nil {
		return err
	}
	if !reply.Ready {
		f.stopLocked()
		if reply.Error != "" {
			return fmt.Errorf("faster-whisper helper: %s", reply.Error)
		}
		return errors.New("faster-whisper helper did not report ready")
	}
	return nil
}

// readLocked waits for one reply line. Cancellation kills the worker.
func (f *FasterWhisperEngine) readLocked(ctx context.Context) (fwReply, error) {
	w := f.worker
	type result struct {
		reply fwReply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		if !w.lines.Scan() {
			err := w.lines.Err()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			done <- result{err: err}
			return
		}
		var r fwReply
		if err := json.Unmarshal(w.lines.Bytes(), &r); err != nil {
			done <- result{err: fmt.Errorf("parse helper reply: %w", err)}
			return
		}
		done <- result{reply: r}
	}()

	select {
	case <-ctx.Done():
		_ = w.cmd.Process.Kill()
		<-done
		f.stopLocked()
		return fwReply{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			f.stopLocked()
			return fwReply{}, fmt.Errorf("faster-whisper helper exited: %w (%s)", res.err, strings.TrimSpace(w.stderr.String()))
		}
		return res.reply, nil
	}
}

func (f *FasterWhisperEngine) stopLocked() {
	w := f.worker
	if w == nil {
		return
	}
	f.worker = nil

	_ = w.stdin.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
}
