package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/line-relay/backend/internal/observe"
	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// Translator 文本翻译
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Options 翻译服务参数
type Options struct {
	SourceLanguage string
	TargetLanguage string
	Timeout        time.Duration
	Template       *PromptTemplate
}

// Service runs text through a prompt template and chat model chain.
type Service struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	opts    Options
	logger  logrus.FieldLogger
	metrics *observe.Metrics
}

// NewService compiles the translation chain around chatModel. metrics may be nil.
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts Options, logger logrus.FieldLogger, metrics *observe.Metrics) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = "Chinese"
	}
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "English"
	}
	if opts.Template == nil {
		tpl := defaultTemplate
		opts.Template = &tpl
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(opts.Template.BuildSystemPrompt()),
		schema.UserMessage("{text}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile translate chain: %w", err)
	}

	return &Service{
		chain:   runnable,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Translate returns the translation of text. Every failure, including an
// empty model answer, is a ModelError.
func (s *Service) Translate(ctx context.Context, text string) (string, error) {
	const op = "translate.Translate"

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.run(ctx, text)
	s.metrics.RecordStage(ctx, "translate", time.Since(start), err)
	if err != nil {
		return "", utils.E(utils.KindModel, op, "translation failed", err)
	}

	s.logger.WithFields(logrus.Fields{
		"source":     s.opts.SourceLanguage,
		"target":     s.opts.TargetLanguage,
		"input_len":  len(text),
		"output_len": len(out),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("text translated")
	return out, nil
}

func (s *Service) run(ctx context.Context, text string) (string, error) {
	msg, err := s.chain.Invoke(ctx, map[string]any{
		"source": s.opts.SourceLanguage,
		"target": s.opts.TargetLanguage,
		"text":   text,
	})
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", errors.New("model returned no message")
	}

	out := strings.TrimSpace(msg.Content)
	if out == "" {
		return "", errors.New("model returned an empty translation")
	}
	return out, nil
}
