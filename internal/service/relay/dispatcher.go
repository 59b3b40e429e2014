// Package relay turns verified webhook events into replies. Each event is
// routed to the handler registered for its kind; handler failures become a
// single fallback reply where the user can still be told something.
package relay

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/line-relay/backend/internal/model/line"
	"github.com/zhouzirui/line-relay/backend/internal/observe"
	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// Replier 使用 reply token 发送文本回复
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Handler processes one event and sends its reply.
type Handler interface {
	Handle(ctx context.Context, ev line.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev line.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev line.Event) error {
	return f(ctx, ev)
}

// Fallback replies, keyed by error kind.
const (
	RetrievalFallback = "Sorry, I couldn't download that voice message. Please try sending it again."
	DecodeFallback    = "Sorry, I couldn't read that voice message."
	ModelFallback     = "Sorry, I couldn't process that message right now. Please try again later."
)

var fallbackReplies = map[utils.Kind]string{
	utils.KindRetrieval: RetrievalFallback,
	utils.KindDecode:    DecodeFallback,
	utils.KindModel:     ModelFallback,
}

// Handlers lists the handler for each supported payload kind. A nil
// handler leaves that kind unhandled. New kinds get a field here and a case
// in Dispatch.
type Handlers struct {
	Text  Handler
	Audio Handler
}

// Dispatcher routes events to handlers by payload kind.
type Dispatcher struct {
	handlers Handlers
	replier  Replier
	fallback bool
	logger   logrus.FieldLogger
	metrics  *observe.Metrics
}

// NewDispatcher 创建事件分发器；fallback 控制失败时是否发送兜底回复
func NewDispatcher(handlers Handlers, replier Replier, fallback bool, logger logrus.FieldLogger, metrics *observe.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: handlers,
		replier:  replier,
		fallback: fallback,
		logger:   logger,
		metrics:  metrics,
	}
}

func (d *Dispatcher) handlerFor(kind line.Kind) Handler {
	switch kind {
	case line.KindText:
		return d.handlers.Text
	case line.KindAudio:
		return d.handlers.Audio
	default:
		return nil
	}
}

// Dispatch runs the handler for ev. Kinds without a handler are ignored.
// Errors are logged and, for kinds the user can act on, answered with one
// fallback reply; nothing is returned to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, ev line.Event) {
	if ev.WebhookEventID == "" {
		ev.WebhookEventID = uuid.NewString()
	}
	logger := d.logger.WithFields(logrus.Fields{
		"event_id":   ev.WebhookEventID,
		"kind":       ev.Kind.String(),
		"redelivery": ev.Redelivery,
	})

	h := d.handlerFor(ev.Kind)
	if h == nil {
		logger.WithField("type", ev.Type).Debug("no handler for event, ignored")
		return
	}
	d.metrics.CountEvent(ctx, ev.Kind.String())

	err := h.Handle(ctx, ev)
	if err == nil {
		d.metrics.CountReply(ctx, "ok")
		logger.Info("event handled")
		return
	}

	kind := utils.KindOf(err)
	d.metrics.CountError(ctx, string(kind))
	logger = logger.WithField("error_kind", kind)
	logger.WithError(err).Error("event handling failed")

	text, ok := fallbackReplies[kind]
	if !ok || !d.fallback {
		d.metrics.CountReply(ctx, "failed")
		return
	}
	if err := d.replier.Reply(ctx, ev.ReplyToken, text); err != nil {
		d.metrics.CountReply(ctx, "failed")
		logger.WithError(err).Warn("fallback reply failed")
		return
	}
	d.metrics.CountReply(ctx, "fallback")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
