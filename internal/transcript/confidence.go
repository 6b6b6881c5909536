package transcript

import "math"

// Score maps engine statistics to a confidence in [0,1]. A log probability
// above 0, a no-speech probability outside [0,1] or any non-finite value
// yields 0.
func Score(avgLogProb, noSpeechProb float64) float64 {
	if !finite(avgLogProb) || !finite(noSpeechProb) {
		return 0
	}
	if avgLogProb > 0 || noSpeechProb < 0 || noSpeechProb > 1 {
		return 0
	}

	value := math.Exp(avgLogProb) * (1.0 - noSpeechProb)
	if !finite(value) {
		return 0
	}
	return math.Max(0, math.Min(1, value))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
