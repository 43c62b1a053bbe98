package audio

import "math"

// SamplesFromBytes decodes little-endian int16 PCM bytes into samples.
// A trailing odd byte is ignored.
func SamplesFromBytes(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// BytesFromSamples encodes int16 samples as little-endian PCM bytes.
func BytesFromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// StereoToMono averages interleaved L+R sample pairs into mono. Uses int32
// arithmetic to prevent overflow; odd trailing samples are dropped.
func StereoToMono(samples []int16) []int16 {
	frames := len(samples) / 2
	out := make([]int16, frames)
	for i := range frames {
		avg := (int32(samples[i*2]) + int32(samples[i*2+1])) / 2
		out[i] = int16(avg)
	}
	return out
}

// EnergyRMS computes the root-mean-square energy of the samples, normalised
// to [0, 1] against full-scale int16. Returns 0 for an empty slice.
func EnergyRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}
