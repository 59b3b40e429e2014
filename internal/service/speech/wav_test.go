package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"
)

func TestLoadWAVSplitsChannels(t *testing.T) {
	data := encodeWAV(t, 8000, 2, []int{16384, -16384, 0, 32767})

	w, err := LoadWAV(data)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if w.SampleRate != 8000 {
		t.Fatalf("SampleRate = %d, want 8000", w.SampleRate)
	}
	if w.NumChannels() != 2 || w.Len() != 2 {
		t.Fatalf("shape = %d channels x %d frames", w.NumChannels(), w.Len())
	}

	want := [][]float64{{0.5, 0}, {-0.5, 32767.0 / 32768}}
	for c := range want {
		for i := range want[c] {
			if math.Abs(w.Channels[c][i]-want[c][i]) > 1e-9 {
				t.Fatalf("channel %d sample %d = %v, want %v", c, i, w.Channels[c][i], want[c][i])
			}
		}
	}
}

func TestLoadWAVRejectsGarbage(t *testing.T) {
	if _, err := LoadWAV([]byte("definitely not audio")); err == nil {
		t.Fatalf("expected error for non-wav input")
	}
}

func TestPatchStreamedWAV(t *testing.T) {
	original := encodeWAV(t, 16000, 1, toPCM16Ints(sine(440, 16000, 320, 0.5)))

	streamed := append([]byte(nil), original...)
	binary.LittleEndian.PutUint32(streamed[4:8], 0xFFFFFFFF)
	dataAt := bytes.Index(streamed, []byte("data"))
	if dataAt < 0 {
		t.Fatalf("fixture has no data chunk")
	}
	binary.LittleEndian.PutUint32(streamed[dataAt+4:dataAt+8], 0xFFFFFFFF)

	patched := patchStreamedWAV(streamed)
	if !bytes.Equal(patched, original) {
		t.Fatalf("patched header differs from a seekable write")
	}

	w, err := LoadWAV(patched)
	if err != nil {
		t.Fatalf("LoadWAV after patch: %v", err)
	}
	if w.Len() != 320 {
		t.Fatalf("Len = %d, want 320", w.Len())
	}
}

func TestFFmpegTranscoderPassesWAVThrough(t *testing.T) {
	data := encodeWAV(t, 16000, 1, []int{1, 2, 3})
	tr := NewFFmpegTranscoder("/nonexistent/ffmpeg", "")

	out, err := tr.ToWAV(context.Background(), data)
	if err != nil {
		t.Fatalf("ToWAV: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("wav input should be returned unchanged")
	}
}

func TestFFmpegTranscoderErrors(t *testing.T) {
	tr := NewFFmpegTranscoder("/nonexistent/ffmpeg", "mp4")

	if _, err := tr.ToWAV(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := tr.ToWAV(context.Background(), []byte("\x1a\x45\xdf\xa3webm")); err == nil {
		t.Fatalf("expected error when ffmpeg is missing")
	}
	if _, err := tr.ToWAV(context.Background(), []byte("\x00\x00\x00\x18ftypM4A ")); err == nil {
		t.Fatalf("expected error for a truncated mp4")
	}
	if err := tr.Check(context.Background()); err == nil {
		t.Fatalf("Check should fail for a missing binary")
	}
}
