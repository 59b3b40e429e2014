package speech

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/line-relay/backend/internal/config"
	speechmodel "github.com/zhouzirui/line-relay/backend/internal/model/speech"
	"github.com/zhouzirui/line-relay/backend/internal/observe"
)

// NewFromConfig builds the transcription pipeline for the configured backend.
func NewFromConfig(cfg config.SpeechConfig, logger logrus.FieldLogger, metrics *observe.Metrics) (*Service, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("speech backend %q is not configured", cfg.Backend)
	}

	var recognizer Recognizer
	switch cfg.Backend {
	case config.BackendVolcengine:
		volc, err := NewVolcengineRecognizer(&speechmodel.SpeechConfig{
			AppID:          cfg.AppID,
			AccessToken:    cfg.AccessToken,
			APIKey:         cfg.APIKey,
			ConcurrentMode: cfg.ConcurrentMode,
			ASRLanguage:    cfg.ASRLanguage,
			Timeout:        int(cfg.Timeout.Seconds()),
		})
		if err != nil {
			return nil, err
		}
		recognizer = volc
	default:
		recognizer = NewCTCRecognizer(NewInferenceClient(cfg.InferenceURL, cfg.ModelName, cfg.Timeout), nil)
	}

	transcoder := NewFFmpegTranscoder(cfg.FFmpegPath, cfg.InputFormat)
	return NewService(transcoder, recognizer, cfg.ASRLanguage, logger, metrics), nil
}

type readiness interface {
	Ready(ctx context.Context) error
}

// TranscoderReady 检查转码器依赖（ffmpeg）是否可用
func (s *Service) TranscoderReady(ctx context.Context) error {
	if c, ok := s.transcoder.(interface{ Check(context.Context) error }); ok {
		return c.Check(ctx)
	}
	return nil
}

// RecognizerReady 检查识别后端是否就绪，不支持探测的后端视为就绪
func (s *Service) RecognizerReady(ctx context.Context) error {
	if r, ok := s.recognizer.(readiness); ok {
		return r.Ready(ctx)
	}
	return nil
}

// Ready 探测声学模型服务
func (r *CTCRecognizer) Ready(ctx context.Context) error {
	if m, ok := r.model.(readiness); ok {
		return m.Ready(ctx)
	}
	return nil
}
