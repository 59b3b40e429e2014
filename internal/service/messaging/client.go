package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/line-relay/backend/internal/config"
	"github.com/zhouzirui/line-relay/backend/internal/observe"
	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// Client wraps the LINE Messaging API for the two calls the relay makes:
// replying with text and downloading message content.
type Client struct {
	token        string
	apiEndpoint  string
	dataEndpoint string
	maxContent   int64
	httpClient   *http.Client
	logger       logrus.FieldLogger
	metrics      *observe.Metrics
}

// NewClient 创建 LINE 客户端，maxContent <= 0 表示不限制下载大小
func NewClient(cfg config.LineConfig, maxContent int64, logger logrus.FieldLogger, metrics *observe.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		token:        cfg.AccessToken,
		apiEndpoint:  cfg.APIEndpoint,
		dataEndpoint: cfg.DataEndpoint,
		maxContent:   maxContent,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		metrics:      metrics,
	}
}

// messagingAPI builds a client bound to ctx. The SDK keeps the context on
// the client value, so one is built per call.
func (c *Client) messagingAPI(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	opts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(c.httpClient)}
	if c.apiEndpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(c.apiEndpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(c.token, opts...)
	if err != nil {
		return nil, err
	}
	return api.WithContext(ctx), nil
}

func (c *Client) blobAPI(ctx context.Context) (*messaging_api.MessagingApiBlobAPI, error) {
	opts := []messaging_api.MessagingApiBlobAPIOption{messaging_api.WithBlobHTTPClient(c.httpClient)}
	if c.dataEndpoint != "" {
		opts = append(opts, messaging_api.WithBlobEndpoint(c.dataEndpoint))
	}
	api, err := messaging_api.NewMessagingApiBlobAPI(c.token, opts...)
	if err != nil {
		return nil, err
	}
	return api.WithContext(ctx), nil
}

// Reply 使用 reply token 回复一条文本消息，失败时返回 DeliveryError
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	const op = "messaging.Reply"

	start := time.Now()
	err := c.reply(ctx, replyToken, text)
	c.metrics.RecordStage(ctx, "reply", time.Since(start), err)
	if err != nil {
		return utils.E(utils.KindDelivery, op, "reply was not accepted", err)
	}
	return nil
}

func (c *Client) reply(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return errors.New("reply token is empty")
	}

	api, err := c.messagingAPI(ctx)
	if err != nil {
		return err
	}

	resp, err := api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return err
	}

	sent := 0
	if resp != nil {
		sent = len(resp.SentMessages)
	}
	c.logger.WithFields(logrus.Fields{
		"reply_len": len(text),
		"sent":      sent,
	}).Debug("reply delivered")
	return nil
}

// FetchContent downloads the binary content of a message. Failures,
// including oversize content, are RetrievalError.
func (c *Client) FetchContent(ctx context.Context, messageID string) ([]byte, error) {
	const op = "messaging.FetchContent"

	start := time.Now()
	data, err := c.fetch(ctx, messageID)
	c.metrics.RecordStage(ctx, "fetch", time.Since(start), err)
	if err != nil {
		return nil, utils.E(utils.KindRetrieval, op, fmt.Sprintf("could not fetch content of message %s", messageID), err)
	}
	return data, nil
}

func (c *Client) fetch(ctx context.Context, messageID string) ([]byte, error) {
	if messageID == "" {
		return nil, errors.New("message id is empty")
	}

	api, err := c.blobAPI(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := api.GetMessageContent(messageID)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if c.maxContent > 0 {
		body = io.LimitReader(resp.Body, c.maxContent+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read content body: %w", err)
	}
	if c.maxContent > 0 && int64(len(data)) > c.maxContent {
		return nil, fmt.Errorf("content exceeds %d bytes", c.maxContent)
	}
	if len(data) == 0 {
		return nil, errors.New("content is empty")
	}

	c.logger.WithFields(logrus.Fields{
		"message_id":   messageID,
		"bytes":        len(data),
		"content_type": resp.Header.Get("Content-Type"),
	}).Debug("message content fetched")
	return data, nil
}
