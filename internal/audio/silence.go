package audio

import (
	"fmt"
	"math"
	"os"
)

type SilenceMetrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// IsSilentWAV reports whether a whole WAV file stays under the dBFS gate.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, SilenceMetrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, SilenceMetrics{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	samples, _, err := decodeMono(f)
	if err != nil {
		return false, SilenceMetrics{}, err
	}

	metrics := Measure(samples)
	if metrics.Samples == 0 {
		return true, metrics, nil
	}

	if math.IsInf(metrics.RMSdBFS, -1) && math.IsInf(metrics.PeakdBFS, -1) {
		return true, metrics, nil
	}

	peakGate := thresholdDBFS + 6
	return metrics.RMSdBFS <= thresholdDBFS && metrics.PeakdBFS <= peakGate, metrics, nil
}

func Measure(samples []float32) SilenceMetrics {
	if len(samples) == 0 {
		return SilenceMetrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
	}

	var peak, sumSquares float64
	for _, s := range samples {
		v := float64(s)
		if abs := math.Abs(v); abs > peak {
			peak = abs
		}
		sumSquares += v * v
	}

	return SilenceMetrics{
		RMSdBFS:  amplitudeToDBFS(math.Sqrt(sumSquares / float64(len(samples)))),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  int64(len(samples)),
	}
}

// EnergyDetector finds silence by sliding a min-silence-long frame over the
// window in 1 ms steps and comparing its RMS level against a dBFS threshold.
type EnergyDetector struct{}

// DetectSilences returns ordered, non-overlapping silence intervals relative
// to the window start. Adjacent silent frames are merged into one interval.
func (EnergyDetector) DetectSilences(w Window, minSilenceMS int64, threshDBFS float64) []Interval {
	lengthMS := w.LengthMS()
	if minSilenceMS <= 0 || lengthMS < minSilenceMS {
		return nil
	}

	prefix := make([]float64, len(w.Samples)+1)
	for i, s := range w.Samples {
		prefix[i+1] = prefix[i] + float64(s)*float64(s)
	}

	threshold := dbfsToAmplitude(threshDBFS)
	rate := int64(w.SampleRate)

	var starts []int64
	for ms := int64(0); ms <= lengthMS-minSilenceMS; ms++ {
		from := ms * rate / 1000
		to := min((ms+minSilenceMS)*rate/1000, int64(len(w.Samples)))
		if to <= from {
			continue
		}
		rms := math.Sqrt((prefix[to] - prefix[from]) / float64(to-from))
		if rms <= threshold {
			starts = append(starts, ms)
		}
	}

	if len(starts) == 0 {
		return nil
	}

	var ranges []Interval
	rangeStart, prev := starts[0], starts[0]
	for _, start := range starts[1:] {
		continuous := start == prev+1
		hasGap := start > prev+minSilenceMS
		if !continuous && hasGap {
			ranges = append(ranges, Interval{StartMS: rangeStart, EndMS: prev + minSilenceMS})
			rangeStart = start
		}
		prev = start
	}
	ranges = append(ranges, Interval{StartMS: rangeStart, EndMS: prev + minSilenceMS})

	return ranges
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}

func dbfsToAmplitude(dbfs float64) float64 {
	return math.Pow(10, dbfs/20.0)
}
