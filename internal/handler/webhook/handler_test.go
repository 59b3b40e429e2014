package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/zhouzirui/line-relay/backend/internal/handler/webhook"
	"github.com/zhouzirui/line-relay/backend/internal/model/line"
	"github.com/zhouzirui/line-relay/backend/internal/service/relay"
)

const channelSecret = "test-channel-secret"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type fakeReplier struct {
	mu      sync.Mutex
	replies map[string]string
}

func (r *fakeReplier) Reply(_ context.Context, token, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replies == nil {
		r.replies = make(map[string]string)
	}
	r.replies[token] = text
	return nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text string) (string, error) {
	return "translated(" + text + ")", nil
}

type recordingDispatcher struct {
	events []line.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev line.Event) {
	d.events = append(d.events, ev)
}

func newRouter(t *testing.T, d webhook.Dispatcher) *chi.Mux {
	t.Helper()
	logger, _ := test.NewNullLogger()
	r := chi.NewRouter()
	webhook.New(channelSecret, d, logger, nil).RegisterRoutes(r)
	return r
}

func newRelayRouter(t *testing.T) (*chi.Mux, *fakeReplier) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	replier := &fakeReplier{}
	d := relay.NewDispatcher(relay.Handlers{
		Text: relay.NewTextHandler(`\en`, "[EN]", fakeTranslator{}, replier),
	}, replier, true, logger, nil)
	return newRouter(t, d), replier
}

func post(r http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Line-Signature", signature)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func textEvent(replyToken, text string) string {
	return `{"type":"message","mode":"active","timestamp":1700000000000,` +
		`"source":{"type":"user","userId":"U0123"},` +
		`"webhookEventId":"01HEVENT` + replyToken + `","deliveryContext":{"isRedelivery":false},` +
		`"replyToken":"` + replyToken + `",` +
		`"message":{"type":"text","id":"468789577898262530","quoteToken":"q","text":` + quote(text) + `}}`
}

func quote(s string) string {
	var b bytes.Buffer
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func callback(events ...string) []byte {
	var b bytes.Buffer
	b.WriteString(`{"destination":"Uxxxxxxxx","events":[`)
	for i, e := range events {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e)
	}
	b.WriteString(`]}`)
	return b.Bytes()
}

func TestCallbackEchoesText(t *testing.T) {
	r, replier := newRelayRouter(t)
	body := callback(textEvent("tok-1", "hi there"))

	resp := post(r, body, sign(channelSecret, body))

	if resp.Code != http.StatusOK || resp.Body.String() != "OK" {
		t.Fatalf("response = %d %q, want 200 OK", resp.Code, resp.Body.String())
	}
	if got := replier.replies["tok-1"]; got != "hi there" {
		t.Fatalf("reply = %q, want echo", got)
	}
}

func TestCallbackTranslatesTriggeredText(t *testing.T) {
	r, replier := newRelayRouter(t)
	body := callback(textEvent("tok-1", `\enhello`), textEvent("tok-2", "plain"))

	resp := post(r, body, sign(channelSecret, body))

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if got := replier.replies["tok-1"]; got != "[EN] translated(hello)" {
		t.Fatalf("reply = %q", got)
	}
	if got := replier.replies["tok-2"]; got != "plain" {
		t.Fatalf("second event reply = %q", got)
	}
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	r, replier := newRelayRouter(t)
	body := callback(textEvent("tok-1", "hi there"))

	cases := map[string]string{
		"missing":    "",
		"wrong key":  sign("other-secret", body),
		"not base64": "%%%",
		"other body": sign(channelSecret, []byte(`{"events":[]}`)),
	}
	for name, signature := range cases {
		t.Run(name, func(t *testing.T) {
			resp := post(r, body, signature)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.Code)
			}
		})
	}
	if len(replier.replies) != 0 {
		t.Fatalf("no event may be dispatched on signature failure, got %v", replier.replies)
	}
}

func TestCallbackMalformedBody(t *testing.T) {
	d := &recordingDispatcher{}
	r := newRouter(t, d)
	body := []byte(`{"events":[`)

	if resp := post(r, body, sign(channelSecret, body)); resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
	if len(d.events) != 0 {
		t.Fatalf("dispatched %d events", len(d.events))
	}
}

func TestCallbackOversizedBody(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := &recordingDispatcher{}
	r := chi.NewRouter()
	webhook.New(channelSecret, d, logger, nil).RegisterRoutes(r)

	// 合法签名但超过上限
	padding := strings.Repeat(" ", 1<<20)
	body := []byte(`{"destination":"U0","events":[]}` + padding)

	resp := post(r, body, sign(channelSecret, body))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.Code)
	}
	if len(d.events) != 0 {
		t.Fatalf("dispatched %d events", len(d.events))
	}
	for _, entry := range hook.AllEntries() {
		if _, ok := entry.Data["error_kind"]; ok {
			t.Fatalf("oversized body logged as %v: %q", entry.Data["error_kind"], entry.Message)
		}
	}
}

func TestCallbackEmptyEvents(t *testing.T) {
	d := &recordingDispatcher{}
	r := newRouter(t, d)
	body := callback()

	if resp := post(r, body, sign(channelSecret, body)); resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for verification ping", resp.Code)
	}
	if len(d.events) != 0 {
		t.Fatalf("dispatched %d events", len(d.events))
	}
}

func TestCallbackEventConversion(t *testing.T) {
	d := &recordingDispatcher{}
	r := newRouter(t, d)

	audio := `{"type":"message","mode":"active","timestamp":1,"source":{"type":"user","userId":"U1"},` +
		`"webhookEventId":"01HAUDIO","deliveryContext":{"isRedelivery":true},"replyToken":"tok-a",` +
		`"message":{"type":"audio","id":"325708","duration":60000,"contentProvider":{"type":"line"}}}`
	sticker := `{"type":"message","mode":"active","timestamp":1,"source":{"type":"user","userId":"U1"},` +
		`"webhookEventId":"01HSTICKER","deliveryContext":{"isRedelivery":false},"replyToken":"tok-s",` +
		`"message":{"type":"sticker","id":"1","quoteToken":"q","packageId":"446","stickerId":"1988","stickerResourceType":"STATIC"}}`
	follow := `{"type":"follow","mode":"active","timestamp":1,"source":{"type":"user","userId":"U1"},` +
		`"webhookEventId":"01HFOLLOW","deliveryContext":{"isRedelivery":false},"replyToken":"tok-f","follow":{"isUnblocked":false}}`
	body := callback(audio, sticker, follow, textEvent("tok-t", "hi"))

	if resp := post(r, body, sign(channelSecret, body)); resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if len(d.events) != 4 {
		t.Fatalf("dispatched %d events, want 4 in order", len(d.events))
	}

	a := d.events[0]
	if a.Kind != line.KindAudio || a.ContentID != "325708" || a.DurationMs != 60000 ||
		a.ReplyToken != "tok-a" || a.WebhookEventID != "01HAUDIO" || !a.Redelivery {
		t.Fatalf("audio event = %+v", a)
	}
	if s := d.events[1]; s.Kind != line.KindOther || s.Type != "message/sticker" {
		t.Fatalf("sticker event = %+v", s)
	}
	if f := d.events[2]; f.Kind != line.KindOther || f.Type != "follow" {
		t.Fatalf("follow event = %+v", f)
	}
	if txt := d.events[3]; txt.Kind != line.KindText || txt.Text != "hi" {
		t.Fatalf("text event = %+v", txt)
	}
}
