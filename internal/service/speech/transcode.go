package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Transcoder 将平台语音容器转为内存中的 WAV
type Transcoder interface {
	ToWAV(ctx context.Context, data []byte) ([]byte, error)
}

// FFmpegTranscoder pipes the container through an ffmpeg child process.
// Input and output stay in memory; no temporary files are written. MP4
// input is remuxed moov-first since ffmpeg cannot seek on its stdin.
type FFmpegTranscoder struct {
	Path        string
	InputFormat string
}

// NewFFmpegTranscoder 创建 ffmpeg 转码器
func NewFFmpegTranscoder(path, inputFormat string) *FFmpegTranscoder {
	if path == "" {
		path = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "mp4"
	}
	return &FFmpegTranscoder{Path: path, InputFormat: inputFormat}
}

// ToWAV returns data unchanged when it is already a WAV file.
func (t *FFmpegTranscoder) ToWAV(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio payload")
	}
	if isWAV(data) {
		return patchStreamedWAV(data), nil
	}
	if isMP4(data) {
		remuxed, err := moovFirst(data)
		if err != nil {
			return nil, fmt.Errorf("remux mp4 container: %w", err)
		}
		data = remuxed
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", t.InputFormat, "-i", "pipe:0",
		"-vn", "-map_metadata", "-1",
		"-f", "wav", "-acodec", "pcm_s16le",
		"pipe:1",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg %s->wav failed: %w: %s", t.InputFormat, err, tail(stderr.String(), 512))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output: %s", tail(stderr.String(), 512))
	}

	return patchStreamedWAV(stdout.Bytes()), nil
}

// Check 确认 ffmpeg 可执行文件存在
func (t *FFmpegTranscoder) Check(context.Context) error {
	if _, err := exec.LookPath(t.Path); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", t.Path, err)
	}
	return nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// patchStreamedWAV fixes the RIFF and data chunk sizes that ffmpeg leaves as
// placeholders when writing to a non-seekable pipe. Sizes that already fit
// the buffer are left alone.
func patchStreamedWAV(b []byte) []byte {
	if !isWAV(b) {
		return b
	}

	if size := binary.LittleEndian.Uint32(b[4:8]); size == 0 || size == 0xFFFFFFFF || int64(size)+8 > int64(len(b)) {
		binary.LittleEndian.PutUint32(b[4:8], uint32(len(b)-8))
	}

	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := binary.LittleEndian.Uint32(b[off+4 : off+8])
		if id == "data" {
			remaining := len(b) - (off + 8)
			if size == 0 || size == 0xFFFFFFFF || int64(size) > int64(remaining) {
				binary.LittleEndian.PutUint32(b[off+4:off+8], uint32(remaining))
			}
			break
		}
		next := int64(off) + 8 + int64(size) + int64(size&1)
		if next > int64(len(b)) {
			break
		}
		off = int(next)
	}
	return b
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
