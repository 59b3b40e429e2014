package speech

import "strings"

// Vocabulary maps CTC output units to characters.
type Vocabulary struct {
	tokens    []string
	pad       int
	delimiter int
	unknown   string
}

// wav2vec2Tokens is the character vocabulary of wav2vec2-base-960h, in id order.
var wav2vec2Tokens = []string{
	"<pad>", "<s>", "</s>", "<unk>", "|",
	"E", "T", "A", "O", "N", "I", "H", "S", "R", "D", "L", "U", "M",
	"W", "C", "F", "G", "Y", "P", "B", "V", "K", "'", "X", "J", "Q", "Z",
}

// Wav2Vec2Vocabulary 返回 wav2vec2-base-960h 的字符表
func Wav2Vec2Vocabulary() *Vocabulary {
	return NewVocabulary(wav2vec2Tokens, "<pad>", "|", "<unk>")
}

// NewVocabulary builds a vocabulary from tokens listed in id order.
func NewVocabulary(tokens []string, pad, delimiter, unknown string) *Vocabulary {
	v := &Vocabulary{tokens: append([]string(nil), tokens...), pad: -1, delimiter: -1, unknown: unknown}
	for i, tok := range tokens {
		switch tok {
		case pad:
			v.pad = i
		case delimiter:
			v.delimiter = i
		}
	}
	return v
}

// Size 字符表大小
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// Decode applies CTC collapsing to a unit sequence: consecutive repeats are
// merged, padding (the blank unit) is dropped, the word delimiter becomes a
// space and the result is trimmed.
func (v *Vocabulary) Decode(ids []int) string {
	var b strings.Builder
	prev := -1
	for _, id := range ids {
		if id == prev {
			continue
		}
		prev = id

		switch {
		case id == v.pad:
		case id == v.delimiter:
			b.WriteByte(' ')
		case id < 0 || id >= len(v.tokens):
			b.WriteString(v.unknown)
		default:
			b.WriteString(v.tokens[id])
		}
	}
	return strings.TrimSpace(b.String())
}

// ArgMax picks the highest scoring unit of every frame. Ties resolve to the
// lowest id.
func ArgMax(logits [][]float32) []int {
	ids := make([]int, len(logits))
	for t, frame := range logits {
		best := 0
		for k := 1; k < len(frame); k++ {
			if frame[k] > frame[best] {
				best = k
			}
		}
		ids[t] = best
	}
	return ids
}
