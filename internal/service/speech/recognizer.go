package speech

import (
	"context"
	"fmt"
	"math"
	"time"

	speechmodel "github.com/zhouzirui/line-relay/backend/internal/model/speech"
)

// Recognizer 语音识别后端，输入为 16kHz 单声道采样
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error)
}

// CTCRecognizer runs feature extraction locally, sends the features to an
// acoustic model and decodes its logits greedily.
type CTCRecognizer struct {
	model AcousticModel
	vocab *Vocabulary
}

// NewCTCRecognizer 创建 CTC 识别器，vocab 为空时使用 wav2vec2 字符表
func NewCTCRecognizer(model AcousticModel, vocab *Vocabulary) *CTCRecognizer {
	if vocab == nil {
		vocab = Wav2Vec2Vocabulary()
	}
	return &CTCRecognizer{model: model, vocab: vocab}
}

func (r *CTCRecognizer) Name() string { return "ctc" }

// Recognize 特征提取 -> 推理 -> arg-max -> CTC 解码
func (r *CTCRecognizer) Recognize(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if req.SampleRate != speechmodel.TargetSampleRate {
		return nil, fmt.Errorf("ctc recognizer needs %d Hz input, got %d", speechmodel.TargetSampleRate, req.SampleRate)
	}
	if len(req.Samples) == 0 {
		return nil, fmt.Errorf("no audio samples provided")
	}

	features := ExtractFeatures([][]float64{req.Samples})

	logits, err := r.model.Infer(ctx, features)
	if err != nil {
		return nil, err
	}
	if len(logits) != 1 {
		return nil, fmt.Errorf("acoustic model returned %d results for a batch of 1", len(logits))
	}
	for _, frame := range logits[0] {
		if len(frame) != r.vocab.Size() {
			return nil, fmt.Errorf("logits width %d does not match vocabulary size %d", len(frame), r.vocab.Size())
		}
	}

	ids := ArgMax(logits[0])

	return &speechmodel.ASRResponse{
		RequestID:  req.RequestID,
		Text:       r.vocab.Decode(ids),
		Confidence: meanMaxProbability(logits[0], ids),
		Duration:   int64(len(req.Samples)) * 1000 / int64(req.SampleRate),
		Backend:    r.Name(),
		CreatedAt:  time.Now(),
	}, nil
}

// meanMaxProbability averages the softmax probability of the chosen unit
// over all frames.
func meanMaxProbability(logits [][]float32, ids []int) float64 {
	if len(logits) == 0 {
		return 0
	}
	var total float64
	for t, frame := range logits {
		best := float64(frame[ids[t]])
		var denom float64
		for _, v := range frame {
			denom += math.Exp(float64(v) - best)
		}
		total += 1 / denom
	}
	return total / float64(len(logits))
}
