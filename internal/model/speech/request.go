package speech

// ASRRequest 语音识别请求，音频已归一化为 16kHz 单声道
type ASRRequest struct {
	RequestID  string    `json:"requestId"`
	Samples    []float64 `json:"-"`
	SampleRate int       `json:"sampleRate"`
	Language   string    `json:"language"` // zh-CN, en-US, etc.
}
