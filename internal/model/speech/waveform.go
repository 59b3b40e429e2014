package speech

import "time"

// TargetSampleRate is the rate every recognizer expects.
const TargetSampleRate = 16000

// Waveform holds de-interleaved float samples in [-1, 1).
type Waveform struct {
	Channels   [][]float64
	SampleRate int
}

// NumChannels 声道数
func (w Waveform) NumChannels() int {
	return len(w.Channels)
}

// Len returns the number of frames (samples per channel).
func (w Waveform) Len() int {
	if len(w.Channels) == 0 {
		return 0
	}
	return len(w.Channels[0])
}

// Duration 音频时长
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(w.Len()) * time.Second / time.Duration(w.SampleRate)
}

// Mono returns the single channel of a mono waveform, or nil otherwise.
func (w Waveform) Mono() []float64 {
	if len(w.Channels) != 1 {
		return nil
	}
	return w.Channels[0]
}
