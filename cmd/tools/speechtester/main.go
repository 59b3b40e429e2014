package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/zhouzirui/line-relay/backend/internal/config"
	"github.com/zhouzirui/line-relay/backend/internal/logger"
	"github.com/zhouzirui/line-relay/backend/internal/service/speech"
	"github.com/zhouzirui/line-relay/backend/internal/service/translate"
)

func main() {
	mode := flag.String("mode", "", "测试模式: asr 或 translate")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	text := flag.String("text", "", "translate 输入文本")
	format := flag.String("format", "", "输入容器格式，默认根据扩展名推断 (m4a -> mp4)")
	backend := flag.String("backend", "", "识别后端: ctc 或 volcengine，默认使用 SPEECH_BACKEND")
	session := flag.String("session", "", "自定义请求 ID，留空则自动生成")
	timeout := flag.Duration("timeout", 90*time.Second, "请求超时时间")
	logLevel := flag.String("log-level", "debug", "日志级别")
	flag.Parse()

	log := logger.New(*logLevel, "text")

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("无法加载 .env，改用系统环境变量")
	}

	if *mode != "asr" && *mode != "translate" {
		flag.Usage()
		log.Fatal("请通过 --mode=asr 或 --mode=translate 指定测试模式")
	}

	requestID := *session
	if requestID == "" {
		requestID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, log, requestID, *audioPath, *format, *backend)
	case "translate":
		runTranslate(ctx, log, *text)
	}
}

func runASR(ctx context.Context, log *logrus.Logger, requestID, audioPath, format, backend string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 --audio 指定音频文件路径")
	}

	cfg, err := config.LoadSpeech()
	if err != nil {
		log.WithError(err).Fatal("语音配置加载失败")
	}
	if backend != "" {
		cfg.Backend = strings.ToLower(backend)
	}
	cfg.InputFormat = inputFormat(audioPath, format, cfg.InputFormat)

	svc, err := speech.NewFromConfig(cfg, log, nil)
	if err != nil {
		log.WithError(err).Fatal("语音服务初始化失败")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.WithError(err).Fatal("读取音频文件失败")
	}

	log.WithFields(logrus.Fields{
		"request_id": requestID,
		"format":     cfg.InputFormat,
		"backend":    svc.Backend(),
		"bytes":      len(data),
	}).Info("开始进行 ASR 测试")

	resp, err := svc.Transcribe(ctx, requestID, data)
	if err != nil {
		log.WithError(err).Fatal("ASR 调用失败")
	}

	log.WithFields(logrus.Fields{
		"confidence":  fmt.Sprintf("%.2f", resp.Confidence),
		"duration_ms": resp.Duration,
	}).Info("ASR 识别成功")
	fmt.Println(resp.Text)
}

func runTranslate(ctx context.Context, log *logrus.Logger, text string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("translate 模式需要通过 --text 提供待翻译文本")
	}

	cfg, err := config.LoadTranslate()
	if err != nil {
		log.WithError(err).Fatal("翻译配置加载失败")
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		log.WithError(err).Fatal("模型初始化失败")
	}

	svc, err := translate.NewService(ctx, chatModel, translate.Options{
		SourceLanguage: cfg.SourceLanguage,
		TargetLanguage: cfg.TargetLanguage,
		Timeout:        cfg.Timeout,
	}, log, nil)
	if err != nil {
		log.WithError(err).Fatal("翻译服务初始化失败")
	}

	out, err := svc.Translate(ctx, text)
	if err != nil {
		log.WithError(err).Fatal("翻译失败")
	}
	fmt.Println(out)
}

// inputFormat picks the ffmpeg demuxer: explicit flag, then file extension,
// then the configured default.
func inputFormat(path, flagValue, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	switch ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext {
	case "":
		return fallback
	case "m4a", "aac", "3gp":
		return "mp4"
	default:
		return ext
	}
}
