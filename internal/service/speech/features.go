package speech

import "math"

// featureEpsilon is the variance floor of the wav2vec2 tokenizer's
// zero-mean unit-variance normalisation.
const featureEpsilon = 1e-5

// ExtractFeatures normalises every item of the batch to zero mean and unit
// variance, then pads to the longest item with zeros. A batch of one is
// never padded.
func ExtractFeatures(batch [][]float64) [][]float32 {
	out := make([][]float32, len(batch))
	for i, x := range batch {
		out[i] = normalize(x)
	}
	return PadLongest(out, 0)
}

// PadLongest 按批次内最长序列右侧补齐
func PadLongest(batch [][]float32, value float32) [][]float32 {
	longest := 0
	for _, x := range batch {
		if len(x) > longest {
			longest = len(x)
		}
	}
	for i, x := range batch {
		if len(x) == longest {
			continue
		}
		padded := make([]float32, longest)
		copy(padded, x)
		for j := len(x); j < longest; j++ {
			padded[j] = value
		}
		batch[i] = padded
	}
	return batch
}

func normalize(x []float64) []float32 {
	out := make([]float32, len(x))
	if len(x) == 0 {
		return out
	}

	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	var variance float64
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(x))

	scale := 1 / math.Sqrt(variance+featureEpsilon)
	for i, v := range x {
		out[i] = float32((v - mean) * scale)
	}
	return out
}
