package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

// Config 聚合整个服务的配置项，启动时构建一次，之后只读。
type Config struct {
	Server    ServerConfig
	Line      LineConfig
	Relay     RelayConfig
	Translate TranslateConfig
	Speech    SpeechConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。缺少 LINE 凭证时返回 ConfigError。
func Load() (*Config, error) {
	line, err := loadLineConfig()
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	translate, err := loadTranslateConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Line:      line,
		Relay:     relay,
		Translate: translate,
		Speech:    speech,
		Log:       loadLogConfig(),
	}, nil
}

// LoadSpeech 只加载语音配置，供不需要 LINE 凭证的工具使用。
func LoadSpeech() (SpeechConfig, error) {
	return loadSpeechConfig()
}

// LoadTranslate 只加载翻译配置。
func LoadTranslate() (TranslateConfig, error) {
	return loadTranslateConfig()
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	MetricsEnabled bool
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	metrics, err := parseBoolEnv("METRICS_ENABLED", true)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "4000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":4000" 或 "127.0.0.1:4000"。
		return ServerConfig{Addr: port, MetricsEnabled: metrics}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, MetricsEnabled: metrics}, nil
}

// LineConfig holds the channel credentials and outbound client settings.
type LineConfig struct {
	AccessToken   string
	ChannelSecret string
	APIEndpoint   string
	DataEndpoint  string
	Timeout       time.Duration
}

func loadLineConfig() (LineConfig, error) {
	token := strings.TrimSpace(os.Getenv("LINE_ACCESS_TOKEN"))
	secret := strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET"))

	var missing []string
	if token == "" {
		missing = append(missing, "LINE_ACCESS_TOKEN")
	}
	if secret == "" {
		missing = append(missing, "LINE_CHANNEL_SECRET")
	}
	if len(missing) > 0 {
		return LineConfig{}, utils.E(utils.KindConfig, "config.Load",
			strings.Join(missing, ", ")+" not set in environment variables", nil)
	}

	timeout, err := parseSecondsEnv("LINE_API_TIMEOUT", 10)
	if err != nil {
		return LineConfig{}, err
	}

	return LineConfig{
		AccessToken:   token,
		ChannelSecret: secret,
		APIEndpoint:   getEnvOrDefault("LINE_API_ENDPOINT", ""),
		DataEndpoint:  getEnvOrDefault("LINE_DATA_ENDPOINT", ""),
		Timeout:       timeout,
	}, nil
}

// RelayConfig 描述消息转发行为。
type RelayConfig struct {
	TranslateTrigger string
	TranslateMarker  string
	FallbackReply    bool
	MaxAudioBytes    int64
}

func loadRelayConfig() (RelayConfig, error) {
	fallback, err := parseBoolEnv("FALLBACK_REPLY_ENABLED", true)
	if err != nil {
		return RelayConfig{}, err
	}

	maxBytes := int64(10 << 20)
	if override, err := parseOptionalIntEnv("MAX_AUDIO_BYTES"); err != nil {
		return RelayConfig{}, err
	} else if override != nil && *override > 0 {
		maxBytes = int64(*override)
	}

	return RelayConfig{
		// 触发前缀不做 TrimSpace 之外的处理，`\en` 中的反斜杠是字面量。
		TranslateTrigger: getEnvOrDefault("TRANSLATE_TRIGGER", `\en`),
		TranslateMarker:  getEnvOrDefault("TRANSLATE_MARKER", "[EN]"),
		FallbackReply:    fallback,
		MaxAudioBytes:    maxBytes,
	}, nil
}

// TranslateConfig 描述翻译所用的大模型配置。
type TranslateConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	SourceLanguage string
	TargetLanguage string
	Timeout        time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c TranslateConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c TranslateConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadTranslateConfig() (TranslateConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return TranslateConfig{}, err
	}

	timeout, err := parseSecondsEnv("TRANSLATE_TIMEOUT", 30)
	if err != nil {
		return TranslateConfig{}, err
	}

	return TranslateConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		SourceLanguage: getEnvOrDefault("TRANSLATE_SOURCE_LANG", "Chinese"),
		TargetLanguage: getEnvOrDefault("TRANSLATE_TARGET_LANG", "English"),
		Timeout:        timeout,
	}, nil
}

// Speech backends.
const (
	BackendCTC        = "ctc"
	BackendVolcengine = "volcengine"
)

// SpeechConfig 描述语音识别相关配置
type SpeechConfig struct {
	Backend     string
	FFmpegPath  string
	InputFormat string
	Timeout     time.Duration

	// CTC 声学模型推理服务
	InferenceURL string
	ModelName    string

	// 火山引擎
	AppID          string
	AccessToken    string
	APIKey         string
	ASRLanguage    string
	ConcurrentMode bool
}

// Enabled 表示所选后端的必需参数是否齐全。
func (c SpeechConfig) Enabled() bool {
	switch c.Backend {
	case BackendVolcengine:
		return c.AppID != "" && c.AccessToken != ""
	default:
		return c.InferenceURL != ""
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseSecondsEnv("ASR_TIMEOUT", 60)
	if err != nil {
		return SpeechConfig{}, err
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	backend := strings.ToLower(getEnvOrDefault("SPEECH_BACKEND", BackendCTC))
	if backend != BackendCTC && backend != BackendVolcengine {
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_BACKEND value %q: want %s or %s", backend, BackendCTC, BackendVolcengine)
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return SpeechConfig{
		Backend:        backend,
		FFmpegPath:     getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		InputFormat:    getEnvOrDefault("AUDIO_INPUT_FORMAT", "mp4"),
		Timeout:        timeout,
		InferenceURL:   strings.TrimRight(getEnvOrDefault("ASR_INFERENCE_URL", ""), "/"),
		ModelName:      getEnvOrDefault("ASR_MODEL_NAME", "wav2vec2-base-960h"),
		AppID:          strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:    accessToken,
		APIKey:         apiKey,
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "zh-CN"),
		ConcurrentMode: concurrent,
	}, nil
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseSecondsEnv(key string, defaultSeconds int) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil || *seconds <= 0 {
		return time.Duration(defaultSeconds) * time.Second, nil
	}
	return time.Duration(*seconds) * time.Second, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
