package speech

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/wav"

	speechmodel "github.com/zhouzirui/line-relay/backend/internal/model/speech"
)

// LoadWAV 解析内存中的 WAV，返回原始采样率和按声道拆分的浮点采样
func LoadWAV(data []byte) (speechmodel.Waveform, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return speechmodel.Waveform{}, errors.New("invalid wav")
	}

	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return speechmodel.Waveform{}, fmt.Errorf("read wav pcm: %w", err)
	}
	if pb == nil || pb.Format == nil {
		return speechmodel.Waveform{}, errors.New("empty wav")
	}

	channels := pb.Format.NumChannels
	if channels <= 0 {
		channels = int(dec.NumChans)
	}
	if channels <= 0 {
		return speechmodel.Waveform{}, errors.New("wav has no channels")
	}
	rate := pb.Format.SampleRate
	if rate <= 0 {
		rate = int(dec.SampleRate)
	}
	if rate <= 0 {
		return speechmodel.Waveform{}, errors.New("wav has no sample rate")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}

	frames := len(pb.Data) / channels
	out := make([][]float64, channels)
	for c := range out {
		out[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			out[c][i] = intToFloat(pb.Data[i*channels+c], bitDepth)
		}
	}

	return speechmodel.Waveform{Channels: out, SampleRate: rate}, nil
}

// intToFloat scales a PCM integer to [-1, 1). 8-bit WAV is unsigned.
func intToFloat(v, bitDepth int) float64 {
	if bitDepth == 8 {
		return float64(v-128) / 128
	}
	return float64(v) / float64(int64(1)<<(bitDepth-1))
}
