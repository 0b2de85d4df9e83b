package stt

import "math"

// Level returns the RMS amplitude of 16-bit PCM normalized to [0,1].
// Misaligned or empty payloads report silence.
func Level(pcm []byte) float64 {
	samples, err := decodePCM16(pcm)
	if err != nil || len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples))))
}
