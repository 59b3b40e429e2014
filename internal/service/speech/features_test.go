package speech

import (
	"math"
	"testing"
)

func TestExtractFeaturesNormalises(t *testing.T) {
	in := make([]float64, 1000)
	for i := range in {
		in[i] = 0.3 + 0.2*math.Sin(float64(i)/7)
	}

	out := ExtractFeatures([][]float64{in})
	if len(out) != 1 || len(out[0]) != len(in) {
		t.Fatalf("unexpected shape %d x %d", len(out), len(out[0]))
	}

	var mean, sq float64
	for _, v := range out[0] {
		mean += float64(v)
	}
	mean /= float64(len(out[0]))
	for _, v := range out[0] {
		d := float64(v) - mean
		sq += d * d
	}
	variance := sq / float64(len(out[0]))

	if math.Abs(mean) > 1e-4 {
		t.Fatalf("mean = %v, want ~0", mean)
	}
	if math.Abs(variance-1) > 1e-3 {
		t.Fatalf("variance = %v, want ~1", variance)
	}
}

func TestExtractFeaturesSilence(t *testing.T) {
	out := ExtractFeatures([][]float64{make([]float64, 16)})
	for i, v := range out[0] {
		if v != 0 {
			t.Fatalf("feature %d = %v, want 0 for silence", i, v)
		}
	}
}

func TestExtractFeaturesPadsToLongest(t *testing.T) {
	out := ExtractFeatures([][]float64{{1, 2, 3, 4}, {1, -1}})
	if len(out[0]) != 4 || len(out[1]) != 4 {
		t.Fatalf("rows not padded: %d, %d", len(out[0]), len(out[1]))
	}
	if out[1][2] != 0 || out[1][3] != 0 {
		t.Fatalf("padding should be zero, got %v", out[1])
	}
	if out[1][0] <= 0 || out[1][1] >= 0 {
		t.Fatalf("short row not normalised before padding: %v", out[1])
	}
}

func TestPadLongestKeepsEqualRows(t *testing.T) {
	row := []float32{1, 2}
	out := PadLongest([][]float32{row, {3, 4}}, -1)
	if &out[0][0] != &row[0] {
		t.Fatalf("rows already at full length should not be copied")
	}
}

func TestExtractFeaturesVarianceFloor(t *testing.T) {
	// 均值 0、方差 1：输出应为 ±1/sqrt(1+1e-5)
	out := ExtractFeatures([][]float64{{1, -1, 1, -1}})
	want := 1 / math.Sqrt(1+1e-5)
	for i, v := range out[0] {
		if math.Abs(math.Abs(float64(v))-want) > 1e-6 {
			t.Fatalf("feature %d = %v, want ±%v", i, v, want)
		}
	}
}
