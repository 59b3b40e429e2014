package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	speechmodel "github.com/zhouzirui/line-relay/backend/internal/model/speech"
)

const (
	volcengineNoStreamURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	// 16kHz, 16bit, mono, 200ms = 6400 bytes
	volcengineChunkBytes = 6400
)

// VolcengineRecognizer 火山引擎大模型流式语音识别（WebSocket 二进制协议）
type VolcengineRecognizer struct {
	config  *speechmodel.SpeechConfig
	dialer  *websocket.Dialer
	appID   string
	token   string
	timeout time.Duration

	// ChunkInterval paces audio frames; the service expects roughly real time.
	ChunkInterval time.Duration
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text     string `json:"text"`
			Definite bool   `json:"definite"`
		} `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// volcengineRequest 首帧中的识别参数
type volcengineRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
	} `json:"request"`
}

// NewVolcengineRecognizer 创建火山引擎识别器。AppID 与 AccessToken（或 APIKey）缺失时返回错误。
// config.Timeout 同时约束握手与整次识别。
func NewVolcengineRecognizer(config *speechmodel.SpeechConfig) (*VolcengineRecognizer, error) {
	if config == nil {
		return nil, fmt.Errorf("火山引擎语音配置未初始化")
	}

	appID := strings.TrimSpace(config.AppID)
	token := strings.TrimSpace(config.AccessToken)
	if token == "" {
		token = strings.TrimSpace(config.APIKey)
	}
	if appID == "" || token == "" {
		return nil, fmt.Errorf("火山引擎语音配置缺少 AppID 或 AccessToken")
	}

	timeout := 30 * time.Second
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}
	return &VolcengineRecognizer{
		config:        config,
		dialer:        &websocket.Dialer{HandshakeTimeout: timeout},
		appID:         appID,
		token:         token,
		timeout:       timeout,
		ChunkInterval: 200 * time.Millisecond,
	}, nil
}

func (c *VolcengineRecognizer) Name() string { return "volcengine" }

// Recognize streams the PCM over one websocket while a second goroutine
// consumes server frames until the final result arrives. The whole session
// is bounded by the recognizer timeout.
func (c *VolcengineRecognizer) Recognize(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	pcm := samplesToPCM16(req.Samples)
	if len(pcm) == 0 {
		return nil, fmt.Errorf("no audio data to send")
	}

	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", c.appID)
	header.Set("X-Api-Access-Key", c.token)
	header.Set("X-Api-Resource-Id", c.resourceID())
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()

	logID := ""
	if resp != nil {
		logID = resp.Header.Get("X-Tt-Logid")
	}

	if err := c.sendFullRequest(conn, req); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	go func() {
		// 取消时关闭连接，解除 ReadMessage 阻塞
		<-gctx.Done()
		conn.Close()
	}()

	var result *speechmodel.ASRResponse
	g.Go(func() error {
		return c.sendAudio(gctx, conn, pcm)
	})
	g.Go(func() error {
		r, err := c.receive(gctx, conn)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if err := g.Wait(); err != nil {
		if logID != "" {
			return nil, fmt.Errorf("ASR logid %s: %w", logID, err)
		}
		return nil, err
	}

	result.RequestID = req.RequestID
	return result, nil
}

func (c *VolcengineRecognizer) endpoint() string {
	if c.config != nil && c.config.BaseURL != "" {
		return c.config.BaseURL
	}
	return volcengineNoStreamURL
}

func (c *VolcengineRecognizer) resourceID() string {
	if c.config != nil && c.config.ConcurrentMode {
		return "volc.bigasr.sauc.concurrent" // 并发版
	}
	return "volc.bigasr.sauc.duration" // 小时版
}

func (c *VolcengineRecognizer) sendFullRequest(conn *websocket.Conn, req *speechmodel.ASRRequest) error {
	var body volcengineRequest
	body.User.UID = req.RequestID
	body.Audio.Format = "pcm"
	body.Audio.Codec = "raw"
	body.Audio.Rate = speechmodel.TargetSampleRate
	body.Audio.Bits = 16
	body.Audio.Channel = 1
	body.Audio.Language = req.Language
	if body.Audio.Language == "" && c.config != nil {
		body.Audio.Language = c.config.ASRLanguage
	}
	body.Request.ModelName = "bigmodel"
	body.Request.EnableITN = true
	body.Request.EnablePunc = true
	body.Request.ShowUtterances = true
	body.Request.ResultType = "full"

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := CompressPayload(payload, GzipCompression)
	if err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}
	frame, err := EncodeMessage(CreateFullClientRequest(compressed, GzipCompression))
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send ASR request: %w", err)
	}
	return nil
}

// sendAudio 分包发送音频；首帧占用序号1，音频从2开始
func (c *VolcengineRecognizer) sendAudio(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	sequence := int32(2)
	for i := 0; i < len(pcm); i += volcengineChunkBytes {
		end := min(i+volcengineChunkBytes, len(pcm))
		isLast := end >= len(pcm)

		chunk, err := CompressPayload(pcm[i:end], GzipCompression)
		if err != nil {
			return fmt.Errorf("failed to compress audio chunk: %w", err)
		}
		frame, err := EncodeMessage(CreateAudioOnlyRequest(chunk, sequence, isLast, GzipCompression))
		if err != nil {
			return fmt.Errorf("failed to encode audio message: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sequence++

		if isLast {
			return nil
		}
		if c.ChunkInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.ChunkInterval):
			}
		}
	}
	return nil
}

// receive 读取服务端帧直到最后一包
func (c *VolcengineRecognizer) receive(ctx context.Context, conn *websocket.Conn) (*speechmodel.ASRResponse, error) {
	var (
		finalText string
		duration  int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read ASR response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, _ := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			return nil, fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress ASR payload: %w", err)
			}

			var serverResp asrServerMessage
			if err := json.Unmarshal(payload, &serverResp); err != nil {
				return nil, fmt.Errorf("failed to unmarshal ASR response: %w", err)
			}
			if serverResp.Code != 0 && serverResp.Code != 20000000 {
				return nil, fmt.Errorf("ASR API error %d: %s", serverResp.Code, serverResp.Message)
			}

			text := serverResp.Result.Text
			if text == "" && len(serverResp.Result.Utterances) > 0 {
				parts := make([]string, 0, len(serverResp.Result.Utterances))
				for _, u := range serverResp.Result.Utterances {
					parts = append(parts, u.Text)
				}
				text = strings.Join(parts, " ")
			}
			if text != "" {
				finalText = text
			}
			if serverResp.AudioInfo.Duration > 0 {
				duration = serverResp.AudioInfo.Duration
			}

			if msg.IsLastPacket() || serverResp.Sequence < 0 {
				return &speechmodel.ASRResponse{
					Text:       finalText,
					Confidence: estimateASRConfidence(finalText),
					Duration:   duration,
					Backend:    c.Name(),
					CreatedAt:  time.Now(),
				}, nil
			}
		}
	}
}

func estimateASRConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}

// samplesToPCM16 converts float samples to little-endian signed 16-bit PCM.
func samplesToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(s * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
