package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	linewebhook "github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/line-relay/backend/internal/model/line"
	"github.com/zhouzirui/line-relay/backend/internal/observe"
	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// maxBodyBytes caps one webhook delivery. LINE batches are far smaller.
const maxBodyBytes = 1 << 20

// Dispatcher 处理单个已验证事件
type Dispatcher interface {
	Dispatch(ctx context.Context, ev line.Event)
}

// Handler LINE webhook 回调入口
type Handler struct {
	channelSecret string
	dispatcher    Dispatcher
	logger        logrus.FieldLogger
	metrics       *observe.Metrics
}

// New 创建 webhook 处理器
func New(channelSecret string, dispatcher Dispatcher, logger logrus.FieldLogger, metrics *observe.Metrics) *Handler {
	return &Handler{
		channelSecret: channelSecret,
		dispatcher:    dispatcher,
		logger:        logger,
		metrics:       metrics,
	}
}

// RegisterRoutes 注册回调路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/callback", h.handleCallback)
}

// handleCallback verifies the signature over the raw body, dispatches every
// event in order and acknowledges with 200 "OK". Nothing is dispatched when
// verification fails.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("request_id", middleware.GetReqID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WithField("limit", tooLarge.Limit).Warn("webhook body too large")
			utils.RespondText(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return
		}
		logger.WithError(err).Warn("failed to read webhook body")
		utils.RespondText(w, http.StatusBadRequest, "Bad Request")
		return
	}
	logger.WithField("body", string(body)).Info("request body")

	r.Body = io.NopCloser(bytes.NewReader(body))
	cb, err := linewebhook.ParseRequest(h.channelSecret, r)
	if err != nil {
		if errors.Is(err, linewebhook.ErrInvalidSignature) {
			h.metrics.CountSignatureFailure(r.Context())
			authErr := utils.E(utils.KindAuth, "webhook.Callback", "invalid signature", err)
			logger.WithField("error_kind", utils.KindAuth).WithError(authErr).Warn("webhook rejected")
			utils.RespondText(w, http.StatusBadRequest, "Invalid signature")
			return
		}
		logger.WithError(err).Warn("malformed webhook body")
		utils.RespondText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	logger.WithFields(logrus.Fields{
		"destination": cb.Destination,
		"events":      len(cb.Events),
	}).Debug("webhook verified")

	for _, e := range cb.Events {
		h.dispatcher.Dispatch(r.Context(), toEvent(e))
	}

	utils.RespondText(w, http.StatusOK, "OK")
}

// toEvent flattens an SDK event into the relay's event type. Anything that
// is not a text or audio message becomes KindOther.
func toEvent(e linewebhook.EventInterface) line.Event {
	ev := line.Event{Kind: line.KindOther}
	if e == nil {
		return ev
	}
	ev.Type = e.GetType()

	msg, ok := e.(linewebhook.MessageEvent)
	if !ok {
		return ev
	}
	ev.WebhookEventID = msg.WebhookEventId
	ev.ReplyToken = msg.ReplyToken
	if msg.DeliveryContext != nil {
		ev.Redelivery = msg.DeliveryContext.IsRedelivery
	}

	switch m := msg.Message.(type) {
	case linewebhook.TextMessageContent:
		ev.Kind = line.KindText
		ev.Text = m.Text
	case linewebhook.AudioMessageContent:
		ev.Kind = line.KindAudio
		ev.ContentID = m.Id
		ev.DurationMs = m.Duration
	case nil:
	default:
		ev.Type = "message/" + m.GetType()
	}
	return ev
}
