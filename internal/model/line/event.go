package line

// Kind 入站事件的载荷类型
type Kind int

const (
	KindOther Kind = iota
	KindText
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAudio:
		return "audio"
	default:
		return "other"
	}
}

// Event is one verified inbound webhook event. It lives for a single
// delivery and is consumed by exactly one handler.
type Event struct {
	Kind           Kind
	WebhookEventID string
	ReplyToken     string
	Redelivery     bool

	// Text is set for KindText.
	Text string

	// ContentID and DurationMs are set for KindAudio.
	ContentID  string
	DurationMs int64

	// Type is the raw platform type tag, kept for logging unmatched events.
	Type string
}

// MaxTextLength is the platform limit for one text message.
const MaxTextLength = 5000
