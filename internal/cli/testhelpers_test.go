package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/fmueller/longscribe/internal/transcript"
	"github.com/fmueller/longscribe/internal/whisper"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	return runApp(t, context.Background(), newAppState(), args)
}

func runApp(t *testing.T, ctx context.Context, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(ctx)
	return outBuf.String(), errBuf.String(), err
}

// fakeEngine answers every clip with one segment naming the clip file. Later
// clips get lower log probabilities so confidences differ per clip.
type fakeEngine struct {
	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	onCall func(clip string)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Transcribe(ctx context.Context, req whisper.Request) ([]transcript.RawSegment, error) {
	clip := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))

	f.mu.Lock()
	f.calls[clip]++
	failure := f.fail[clip]
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(clip)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	n, _ := strconv.Atoi(strings.TrimPrefix(clip, "clip_"))
	return []transcript.RawSegment{{
		Start:        0,
		End:          1,
		Text:         "spoken " + clip,
		AvgLogProb:   -0.1 * float64(n+1),
		NoSpeechProb: 0.05,
	}}, nil
}

func (f *fakeEngine) setFailure(clip string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, clip)
		return
	}
	f.fail[clip] = err
}

func (f *fakeEngine) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeEngine) callsFor(clip string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[clip]
}

func newTestApp(engine whisper.Engine) *appState {
	app := newAppState()
	app.engineFn = func(context.Context) (whisper.Engine, whisper.Request, error) {
		return engine, whisper.Request{Model: "fake", Language: "auto", BeamSize: whisper.DefaultBeamSize}, nil
	}
	return app
}

// pipelineArgs prefixes a command with small clip bounds so the 10 s fixture
// is cut into several clips.
func pipelineArgs(workDir string, args ...string) []string {
	return append(args,
		"--work-dir", workDir,
		"--no-progress",
		"--max-clip-ms", "4000",
		"--min-clip-ms", "1000",
		"--min-silence-ms", "300",
		"--keep-silence-ms", "100",
	)
}

// writeSpeechFixture writes 10 s of 16 kHz audio: tone, pause, tone, pause,
// tone (3 s, 1 s, 3 s, 1 s, 2 s).
func writeSpeechFixture(t *testing.T) string {
	t.Helper()

	const rate = 16000
	var samples []int16
	for i, part := range []struct {
		seconds int
		tone    bool
	}{{3, true}, {1, false}, {3, true}, {1, false}, {2, true}} {
		n := part.seconds * rate
		for j := 0; j < n; j++ {
			if !part.tone {
				samples = append(samples, 0)
				continue
			}
			v := 0.5 * math.Sin(2*math.Pi*float64(220*(i+1))*float64(j)/rate)
			samples = append(samples, int16(v*32767))
		}
	}

	path := filepath.Join(t.TempDir(), "talk.wav")
	require.NoError(t, os.WriteFile(path, makePCM16WAVForTest(samples, rate, 1), 0o644))
	return path
}

func makePCM16WAVForTest(samples []int16, sampleRate int, channels int) []byte {
	bytesPerSample := 2
	dataSize := len(samples) * bytesPerSample
	fmtChunkSize := 16
	riffSize := 4 + (8 + fmtChunkSize) + (8 + dataSize)

	out := make([]byte, 12+8+fmtChunkSize+8+dataSize)
	off := 0

	copy(out[off:], []byte("RIFF"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(riffSize))
	off += 4
	copy(out[off:], []byte("WAVE"))
	off += 4

	copy(out[off:], []byte("fmt "))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(fmtChunkSize))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], 1)
	off += 2
	binary.LittleEndian.PutUint16(out[off:], uint16(channels))
	off += 2
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate*channels*bytesPerSample))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], uint16(channels*bytesPerSample))
	off += 2
	binary.LittleEndian.PutUint16(out[off:], 16)
	off += 2

	copy(out[off:], []byte("data"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(dataSize))
	off += 4

	for _, s := range samples {
		binary.LittleEndian.PutUint16(out[off:], uint16(s))
		off += 2
	}

	return out
}
