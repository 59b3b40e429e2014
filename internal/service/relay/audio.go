package relay

import (
	"context"
	"strings"

	"github.com/zhouzirui/line-relay/backend/internal/model/line"
	speechmodel "github.com/zhouzirui/line-relay/backend/internal/model/speech"
	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// ContentFetcher 下载消息的二进制内容
type ContentFetcher interface {
	FetchContent(ctx context.Context, messageID string) ([]byte, error)
}

// Transcriber 将音频容器转写为文本
type Transcriber interface {
	Transcribe(ctx context.Context, requestID string, container []byte) (*speechmodel.ASRResponse, error)
}

// NoSpeechReply is sent when recognition succeeds but yields no text.
const NoSpeechReply = "(no speech recognized)"

// AudioHandler fetches a voice message, transcribes it and replies with the
// transcript.
type AudioHandler struct {
	fetcher     ContentFetcher
	transcriber Transcriber
	replier     Replier
}

// NewAudioHandler 创建语音处理器，transcriber 为 nil 时返回 ModelError
func NewAudioHandler(fetcher ContentFetcher, transcriber Transcriber, replier Replier) *AudioHandler {
	return &AudioHandler{
		fetcher:     fetcher,
		transcriber: transcriber,
		replier:     replier,
	}
}

// Handle runs fetch -> transcribe -> reply once, without retries.
func (h *AudioHandler) Handle(ctx context.Context, ev line.Event) error {
	const op = "relay.AudioHandler"

	if h.transcriber == nil {
		return utils.E(utils.KindModel, op, "speech recognition is not configured", nil)
	}

	data, err := h.fetcher.FetchContent(ctx, ev.ContentID)
	if err != nil {
		return err
	}

	result, err := h.transcriber.Transcribe(ctx, ev.WebhookEventID, data)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = NoSpeechReply
	}
	return h.replier.Reply(ctx, ev.ReplyToken, truncate(text, line.MaxTextLength))
}
