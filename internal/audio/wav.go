package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/fmueller/longscribe/internal/atomicfile"
	"github.com/youpy/go-wav"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

// ClipSampleRate is the rate clips are exported at; whisper.cpp only accepts 16 kHz input.
const ClipSampleRate = 16000

const (
	pcmFormat = 1
	readBatch = 8192
)

// Window is a mono slice of the source signal with samples in [-1, 1].
type Window struct {
	StartMS    int64
	SampleRate int
	Samples    []float32
}

func (w Window) LengthMS() int64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return int64(len(w.Samples)) * 1000 / int64(w.SampleRate)
}

// Interval is a [StartMS, EndMS) range relative to the window start.
type Interval struct {
	StartMS int64
	EndMS   int64
}

// WAVSource holds a decoded, mono-mixed PCM WAV file.
type WAVSource struct {
	Path       string
	SampleRate int
	samples    []float32
}

func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	samples, rate, err := decodeMono(f)
	if err != nil {
		return nil, err
	}

	return &WAVSource{Path: path, SampleRate: rate, samples: samples}, nil
}

func NewMemorySource(samples []float32, sampleRate int) *WAVSource {
	return &WAVSource{SampleRate: sampleRate, samples: samples}
}

func (s *WAVSource) DurationMS() int64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return int64(len(s.samples)) * 1000 / int64(s.SampleRate)
}

// ReadWindow returns the samples in [startMS, startMS+lengthMS), clamped to the source.
func (s *WAVSource) ReadWindow(startMS, lengthMS int64) (Window, error) {
	if startMS < 0 || lengthMS < 0 {
		return Window{}, fmt.Errorf("invalid window start=%d length=%d", startMS, lengthMS)
	}

	from, to := s.sampleRange(startMS, lengthMS)
	return Window{StartMS: startMS, SampleRate: s.SampleRate, Samples: s.samples[from:to]}, nil
}

// ExportClip writes [startMS, startMS+durationMS) as 16-bit mono PCM at ClipSampleRate.
func (s *WAVSource) ExportClip(startMS, durationMS int64, dest string) error {
	from, to := s.sampleRange(startMS, durationMS)
	resampled := resampleLinear(s.samples[from:to], s.SampleRate, ClipSampleRate)

	out, err := atomicfile.Create(dest, 0o644)
	if err != nil {
		return err
	}

	samples := make([]wav.Sample, len(resampled))
	for i, v := range resampled {
		samples[i].Values[0] = int(math.Round(float64(clampUnit(v)) * 32767))
	}

	writer := wav.NewWriter(out, uint32(len(samples)), 1, ClipSampleRate, 16)
	if err := writer.WriteSamples(samples); err != nil {
		out.Abort()
		return fmt.Errorf("write clip %s: %w", dest, err)
	}

	return out.Commit()
}

func (s *WAVSource) sampleRange(startMS, lengthMS int64) (int, int) {
	n := int64(len(s.samples))
	from := min(startMS*int64(s.SampleRate)/1000, n)
	to := min((startMS+lengthMS)*int64(s.SampleRate)/1000, n)
	return int(from), int(to)
}

func decodeMono(r wavFile) ([]float32, int, error) {
	if err := checkRIFF(r); err != nil {
		return nil, 0, err
	}

	reader := wav.NewReader(r)
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if err := validateFormat(format.AudioFormat, format.BitsPerSample); err != nil {
		return nil, 0, err
	}
	if format.NumChannels == 0 || format.SampleRate == 0 {
		return nil, 0, ErrInvalidWAV
	}

	channels := int(format.NumChannels)
	if channels > 2 {
		return nil, 0, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, channels)
	}

	scale := math.Ldexp(1, int(format.BitsPerSample)-1)
	var mono []float32
	for {
		batch, err := reader.ReadSamples(readBatch)
		for _, sample := range batch {
			var sum float64
			for ch := 0; ch < channels; ch++ {
				sum += float64(sample.Values[ch]) / scale
			}
			mono = append(mono, float32(sum/float64(channels)))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read wav samples: %w", err)
		}
	}

	return mono, int(format.SampleRate), nil
}

type wavFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

func checkRIFF(r io.ReadSeeker) error {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return fmt.Errorf("read wav header: %w", err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return ErrInvalidWAV
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind wav: %w", err)
	}
	return nil
}

func validateFormat(audioFormat, bitsPerSample uint16) error {
	if audioFormat != pcmFormat {
		return ErrUnsupportedWAV
	}

	switch bitsPerSample {
	case 16, 24, 32:
		return nil
	default:
		return ErrUnsupportedWAV
	}
}

func resampleLinear(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}

func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
