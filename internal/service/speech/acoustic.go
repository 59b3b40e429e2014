package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// AcousticModel 声学模型：输入特征批次，输出每帧的词表 logits
type AcousticModel interface {
	Infer(ctx context.Context, batch [][]float32) ([][][]float32, error)
}

// InferenceClient calls an acoustic model hosted behind the Open Inference
// Protocol (v2) REST API, as served by KServe, Triton and MLServer. The
// weights are loaded once by the server and shared by every request.
type InferenceClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferRequest struct {
	ID      string              `json:"id,omitempty"`
	Inputs  []inferTensor       `json:"inputs"`
	Outputs []map[string]string `json:"outputs,omitempty"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	ID        string        `json:"id"`
	Outputs   []inferTensor `json:"outputs"`
	Error     string        `json:"error,omitempty"`
}

// NewInferenceClient 创建推理服务客户端
func NewInferenceClient(baseURL, model string, timeout time.Duration) *InferenceClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &InferenceClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Infer sends the batch as the `input_values` tensor and returns the
// `logits` tensor reshaped to [batch][frames][vocab].
func (c *InferenceClient) Infer(ctx context.Context, batch [][]float32) ([][][]float32, error) {
	if len(batch) == 0 || len(batch[0]) == 0 {
		return nil, fmt.Errorf("empty input batch")
	}

	n := len(batch[0])
	flat := make([]float32, 0, len(batch)*n)
	for _, row := range batch {
		if len(row) != n {
			return nil, fmt.Errorf("ragged batch: %d vs %d samples", len(row), n)
		}
		flat = append(flat, row...)
	}

	body, err := json.Marshal(inferRequest{
		Inputs: []inferTensor{{
			Name:     "input_values",
			Shape:    []int{len(batch), n},
			Datatype: "FP32",
			Data:     flat,
		}},
		Outputs: []map[string]string{{"name": "logits"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/models/%s/infer", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}

	var parsed inferResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("inference status %d, undecodable body: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference status %d: %s", resp.StatusCode, parsed.Error)
	}

	for _, out := range parsed.Outputs {
		if out.Name == "logits" {
			return reshapeLogits(out)
		}
	}
	return nil, fmt.Errorf("inference response has no logits output")
}

// Ready 查询模型是否就绪
func (c *InferenceClient) Ready(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/v2/models/%s/ready", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model %s not ready: status %d", c.model, resp.StatusCode)
	}
	return nil
}

func reshapeLogits(t inferTensor) ([][][]float32, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("logits shape %v is not [batch, frames, vocab]", t.Shape)
	}
	b, frames, vocab := t.Shape[0], t.Shape[1], t.Shape[2]
	if b <= 0 || frames <= 0 || vocab <= 0 {
		return nil, fmt.Errorf("logits shape %v has a non-positive dimension", t.Shape)
	}
	// 先按数据量逐维校验，避免乘积溢出
	n := len(t.Data)
	if b > n || frames > n/b || vocab != n/(b*frames) || b*frames*vocab != n {
		return nil, fmt.Errorf("logits shape %v does not match %d values", t.Shape, n)
	}

	out := make([][][]float32, b)
	for i := 0; i < b; i++ {
		out[i] = make([][]float32, frames)
		for f := 0; f < frames; f++ {
			start := (i*frames + f) * vocab
			out[i][f] = t.Data[start : start+vocab]
		}
	}
	return out, nil
}
