package beatmap

import (
	"math"
	"sort"
)

// EstimateBPM guesses the tempo of mono PCM samples from onset peaks in a
// 10ms RMS envelope. The second return value is false when too few onsets
// were found, in which case DefaultBPM is returned.
func EstimateBPM(samples []float64, sampleRate int, policy Policy) (float64, bool) {
	policy = policy.withDefaults()
	hop := sampleRate / 100
	if hop < 1 || len(samples) < hop*2 {
		return DefaultBPM, false
	}

	env := make([]float64, len(samples)/hop)
	for i := range env {
		var sum float64
		for _, s := range samples[i*hop : (i+1)*hop] {
			sum += s * s
		}
		env[i] = math.Sqrt(sum / float64(hop))
	}

	var mean float64
	for _, v := range env {
		mean += v
	}
	mean /= float64(len(env))
	var variance float64
	for _, v := range env {
		variance += (v - mean) * (v - mean)
	}
	threshold := mean + 0.5*math.Sqrt(variance/float64(len(env)))

	hopsPerSecond := float64(sampleRate) / float64(hop)
	minGap := int(60 / policy.MaxBPM * hopsPerSecond)

	var peaks []int
	for i := 1; i < len(env)-1; i++ {
		if env[i] <= threshold || env[i] <= env[i-1] || env[i] < env[i+1] {
			continue
		}
		if len(peaks) > 0 && i-peaks[len(peaks)-1] < minGap {
			continue
		}
		peaks = append(peaks, i)
	}
	if len(peaks) < 2 {
		return DefaultBPM, false
	}

	intervals := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		intervals = append(intervals, float64(peaks[i]-peaks[i-1])/hopsPerSecond)
	}
	sort.Float64s(intervals)
	median := intervals[len(intervals)/2]
	if median <= 0 {
		return DefaultBPM, false
	}

	return math.Round(ClampBPM(60/median, policy)), true
}
