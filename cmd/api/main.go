package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/line-relay/backend/internal/config"
	"github.com/zhouzirui/line-relay/backend/internal/handler"
	"github.com/zhouzirui/line-relay/backend/internal/handler/health"
	"github.com/zhouzirui/line-relay/backend/internal/handler/webhook"
	"github.com/zhouzirui/line-relay/backend/internal/logger"
	"github.com/zhouzirui/line-relay/backend/internal/observe"
	"github.com/zhouzirui/line-relay/backend/internal/service/messaging"
	"github.com/zhouzirui/line-relay/backend/internal/service/relay"
	"github.com/zhouzirui/line-relay/backend/internal/service/speech"
	"github.com/zhouzirui/line-relay/backend/internal/service/translate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Warn("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	// Metrics
	var (
		metrics        *observe.Metrics
		metricsHandler http.Handler
	)
	if cfg.Server.MetricsEnabled {
		provider, err := observe.InitProvider()
		if err != nil {
			log.WithError(err).Fatal("failed to initialise metrics provider")
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("metrics provider shutdown")
			}
		}()
		if metrics, err = observe.NewMetrics(provider.MeterProvider); err != nil {
			log.WithError(err).Fatal("failed to create metric instruments")
		}
		metricsHandler = provider.Handler()
	}

	lineClient := messaging.NewClient(cfg.Line, cfg.Relay.MaxAudioBytes, log.WithField("component", "messaging"), metrics)

	// Translation
	var translator translate.Translator
	if cfg.Translate.Enabled() {
		translateSvc, err := newTranslator(ctx, cfg.Translate, log, metrics)
		if err != nil {
			log.WithError(err).Warn("failed to initialise translator, continuing without translation")
		} else {
			translator = translateSvc
			log.WithField("model", cfg.Translate.Model).Info("translator initialised")
		}
	} else {
		log.Info("Ark 凭证未配置，跳过翻译功能初始化")
	}

	// Speech
	var (
		transcriber relay.Transcriber
		speechSvc   *speech.Service
	)
	if cfg.Speech.Enabled() {
		speechSvc, err = speech.NewFromConfig(cfg.Speech, log.WithField("component", "speech"), metrics)
		if err != nil {
			log.WithError(err).Warn("failed to initialise speech service, continuing without transcription")
		} else {
			transcriber = speechSvc
			log.WithField("backend", speechSvc.Backend()).Info("speech service initialised")
		}
	} else {
		log.WithField("backend", cfg.Speech.Backend).Info("语音识别未配置，跳过语音功能初始化")
	}

	dispatcher := relay.NewDispatcher(relay.Handlers{
		Text:  relay.NewTextHandler(cfg.Relay.TranslateTrigger, cfg.Relay.TranslateMarker, translator, lineClient),
		Audio: relay.NewAudioHandler(lineClient, transcriber, lineClient),
	}, lineClient, cfg.Relay.FallbackReply, log.WithField("component", "relay"), metrics)

	router := handler.NewRouter(
		webhook.New(cfg.Line.ChannelSecret, dispatcher, log.WithField("component", "webhook"), metrics),
		health.New(readinessCheckers(speechSvc, translator)...),
		metricsHandler,
		metrics,
		log,
	)

	startServer(ctx, cfg.Server, router, log)
}

func newTranslator(ctx context.Context, cfg config.TranslateConfig, log *logrus.Logger, metrics *observe.Metrics) (*translate.Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return translate.NewService(ctx, chatModel, translate.Options{
		SourceLanguage: cfg.SourceLanguage,
		TargetLanguage: cfg.TargetLanguage,
		Timeout:        cfg.Timeout,
	}, log.WithField("component", "translate"), metrics)
}

func readinessCheckers(speechSvc *speech.Service, translator translate.Translator) []health.Checker {
	if speechSvc == nil {
		return []health.Checker{
			{Name: "speech", Optional: true, Check: notConfigured},
			translatorChecker(translator),
		}
	}
	return []health.Checker{
		{Name: "ffmpeg", Check: speechSvc.TranscoderReady},
		{Name: "recognizer", Optional: true, Check: speechSvc.RecognizerReady},
		translatorChecker(translator),
	}
}

func translatorChecker(translator translate.Translator) health.Checker {
	check := func(context.Context) error { return nil }
	if translator == nil {
		check = notConfigured
	}
	return health.Checker{Name: "translator", Optional: true, Check: check}
}

func notConfigured(context.Context) error {
	return errors.New("not configured")
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log logrus.FieldLogger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", addr).Info("LINE relay listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
