package speech

// SpeechConfig 火山引擎语音识别配置
type SpeechConfig struct {
	AppID          string `json:"appId"`            // 火山引擎 APP ID
	AccessToken    string `json:"accessToken"`      // 火山引擎 Access Token
	APIKey         string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	BaseURL        string `json:"baseUrl"`          // 覆盖默认 WebSocket 地址
	ConcurrentMode bool   `json:"concurrentMode"`   // ASR并发模式（false为小时版）

	ASRLanguage string `json:"asrLanguage"`

	// 通用配置
	Timeout int `json:"timeout"` // seconds
}
