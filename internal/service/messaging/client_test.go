package messaging_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/zhouzirui/line-relay/backend/internal/config"
	"github.com/zhouzirui/line-relay/backend/internal/service/messaging"
	"github.com/zhouzirui/line-relay/backend/pkg/utils"
)

type replyBody struct {
	ReplyToken string `json:"replyToken"`
	Messages   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"messages"`
}

func newClient(t *testing.T, srv *httptest.Server, maxContent int64) *messaging.Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return messaging.NewClient(config.LineConfig{
		AccessToken:  "channel-token",
		APIEndpoint:  srv.URL,
		DataEndpoint: srv.URL,
		Timeout:      time.Second,
	}, maxContent, logger, nil)
}

func TestReply(t *testing.T) {
	var got replyBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/bot/message/reply" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer channel-token" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode reply: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sentMessages":[{"id":"1","quoteToken":"q"}]}`))
	}))
	defer srv.Close()

	if err := newClient(t, srv, 0).Reply(context.Background(), "reply-token", "[EN] hello"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got.ReplyToken != "reply-token" {
		t.Fatalf("replyToken = %q", got.ReplyToken)
	}
	if len(got.Messages) != 1 || got.Messages[0].Type != "text" || got.Messages[0].Text != "[EN] hello" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestReplyRejectedIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer srv.Close()

	client := newClient(t, srv, 0)
	if err := client.Reply(context.Background(), "expired", "hi"); !utils.IsKind(err, utils.KindDelivery) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if err := client.Reply(context.Background(), "", "hi"); !utils.IsKind(err, utils.KindDelivery) {
		t.Fatalf("expected DeliveryError for empty token, got %v", err)
	}
}

func TestFetchContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/325708/content" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/x-m4a")
		_, _ = w.Write([]byte("m4a-bytes"))
	}))
	defer srv.Close()

	data, err := newClient(t, srv, 1024).FetchContent(context.Background(), "325708")
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if string(data) != "m4a-bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestFetchContentFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/big/"):
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case strings.Contains(r.URL.Path, "/empty/"):
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not found"}`))
		}
	}))
	defer srv.Close()

	client := newClient(t, srv, 16)
	for _, id := range []string{"missing", "big", "empty", ""} {
		if _, err := client.FetchContent(context.Background(), id); !utils.IsKind(err, utils.KindRetrieval) {
			t.Errorf("FetchContent(%q): expected RetrievalError, got %v", id, err)
		}
	}
}
