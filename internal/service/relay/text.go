package relay

import (
	"context"
	"strings"

	"github.com/zhouzirui/line-relay/backend/internal/model/line"
	"github.com/zhouzirui/line-relay/backend/internal/service/translate"
	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// TextHandler echoes text back, or translates it when it starts with the
// trigger prefix.
type TextHandler struct {
	trigger    string
	marker     string
	translator translate.Translator
	replier    Replier
}

// NewTextHandler 创建文本处理器，translator 为 nil 时触发翻译将返回 ModelError
func NewTextHandler(trigger, marker string, translator translate.Translator, replier Replier) *TextHandler {
	return &TextHandler{
		trigger:    trigger,
		marker:     marker,
		translator: translator,
		replier:    replier,
	}
}

// Handle sends exactly one reply for a text event.
func (h *TextHandler) Handle(ctx context.Context, ev line.Event) error {
	reply, err := h.compose(ctx, ev.Text)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	return h.replier.Reply(ctx, ev.ReplyToken, truncate(reply, line.MaxTextLength))
}

func (h *TextHandler) compose(ctx context.Context, text string) (string, error) {
	const op = "relay.TextHandler"

	if h.trigger == "" || !strings.HasPrefix(text, h.trigger) {
		return text, nil
	}

	rest := strings.TrimPrefix(text, h.trigger)
	if strings.TrimSpace(rest) == "" {
		return h.marker, nil
	}
	if h.translator == nil {
		return "", utils.E(utils.KindModel, op, "translation is not configured", nil)
	}

	translated, err := h.translator.Translate(ctx, rest)
	if err != nil {
		return "", err
	}
	return h.marker + " " + translated, nil
}
