package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	speechmodel "github.com/zhouzirui/line-relay/backend/internal/model/speech"
	"github.com/zhouzirui/line-relay/backend/internal/observe"
	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// Service 语音转写流水线：容器解码 -> 单声道 16kHz -> 识别
type Service struct {
	transcoder Transcoder
	recognizer Recognizer
	language   string
	logger     logrus.FieldLogger
	metrics    *observe.Metrics
}

// NewService 创建语音服务实例，metrics 可为 nil
func NewService(transcoder Transcoder, recognizer Recognizer, language string, logger logrus.FieldLogger, metrics *observe.Metrics) *Service {
	return &Service{
		transcoder: transcoder,
		recognizer: recognizer,
		language:   language,
		logger:     logger,
		metrics:    metrics,
	}
}

// Backend 返回识别后端名称
func (s *Service) Backend() string {
	return s.recognizer.Name()
}

// Transcribe decodes one audio container and returns its transcription.
// Container and WAV failures are DecodeError; recognizer failures are
// ModelError.
func (s *Service) Transcribe(ctx context.Context, requestID string, container []byte) (*speechmodel.ASRResponse, error) {
	const op = "speech.Transcribe"

	start := time.Now()
	wave, err := s.decode(ctx, container)
	s.metrics.RecordStage(ctx, "transcode", time.Since(start), err)
	if err != nil {
		return nil, utils.E(utils.KindDecode, op, "could not decode audio container", err)
	}

	samples, rate := ToMono16k(wave)

	s.logger.WithFields(logrus.Fields{
		"request_id":      requestID,
		"source_rate":     wave.SampleRate,
		"source_channels": wave.NumChannels(),
		"source_ms":       wave.Duration().Milliseconds(),
		"samples":         len(samples),
		"backend":         s.recognizer.Name(),
	}).Debug("audio normalised for recognition")

	start = time.Now()
	resp, err := s.recognizer.Recognize(ctx, &speechmodel.ASRRequest{
		RequestID:  requestID,
		Samples:    samples,
		SampleRate: rate,
		Language:   s.language,
	})
	s.metrics.RecordStage(ctx, "recognize", time.Since(start), err)
	if err != nil {
		return nil, utils.E(utils.KindModel, op, fmt.Sprintf("%s recognizer failed", s.recognizer.Name()), err)
	}
	return resp, nil
}

func (s *Service) decode(ctx context.Context, container []byte) (speechmodel.Waveform, error) {
	wavBytes, err := s.transcoder.ToWAV(ctx, container)
	if err != nil {
		return speechmodel.Waveform{}, err
	}
	wave, err := LoadWAV(wavBytes)
	if err != nil {
		return speechmodel.Waveform{}, err
	}
	if wave.Len() == 0 {
		return speechmodel.Waveform{}, errors.New("audio contains no samples")
	}
	return wave, nil
}
