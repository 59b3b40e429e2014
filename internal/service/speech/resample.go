package speech

import (
	"math"

	speechmodel "github.com/zhouzirui/line-relay/backend/internal/model/speech"
)

// sincHalfWidth is the number of zero crossings kept on each side of the
// interpolation kernel.
const sincHalfWidth = 16

// MixToMono 多声道取平均；单声道原样返回
func MixToMono(w speechmodel.Waveform) speechmodel.Waveform {
	if w.NumChannels() <= 1 {
		return w
	}

	frames := w.Len()
	mono := make([]float64, frames)
	inv := 1 / float64(w.NumChannels())
	for i := 0; i < frames; i++ {
		var sum float64
		for _, ch := range w.Channels {
			sum += ch[i]
		}
		mono[i] = sum * inv
	}
	return speechmodel.Waveform{Channels: [][]float64{mono}, SampleRate: w.SampleRate}
}

// Resample converts x from srcRate to dstRate with Hann-windowed sinc
// interpolation. The kernel cutoff follows the lower Nyquist frequency, so
// downsampling is band-limited. Output length is ceil(len(x)*dst/src).
// When the rates match x is returned unchanged.
func Resample(x []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(x) == 0 || srcRate <= 0 || dstRate <= 0 {
		return x
	}

	ratio := float64(dstRate) / float64(srcRate)
	n := int(math.Ceil(float64(len(x)) * ratio))
	cutoff := math.Min(1, ratio)
	width := float64(sincHalfWidth) / cutoff

	out := make([]float64, n)
	last := len(x) - 1
	for i := range out {
		pos := float64(i) / ratio
		lo := int(math.Ceil(pos - width))
		hi := int(math.Floor(pos + width))
		if lo < 0 {
			lo = 0
		}
		if hi > last {
			hi = last
		}

		var acc, norm float64
		for j := lo; j <= hi; j++ {
			d := pos - float64(j)
			w := cutoff * sinc(cutoff*d) * hann(d/width)
			acc += w * x[j]
			norm += w
		}
		if norm != 0 {
			out[i] = acc / norm
		}
	}
	return out
}

// ToMono16k runs the mixdown and resample stages and returns the samples
// together with the resulting rate, which is always TargetSampleRate.
func ToMono16k(w speechmodel.Waveform) ([]float64, int) {
	mono := MixToMono(w)
	samples := mono.Mono()
	if mono.SampleRate != speechmodel.TargetSampleRate {
		samples = Resample(samples, mono.SampleRate, speechmodel.TargetSampleRate)
	}
	return samples, speechmodel.TargetSampleRate
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hann(u float64) float64 {
	if u <= -1 || u >= 1 {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*u))
}
