package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/zhouzirui/line-relay/backend/internal/handler/health"
	"github.com/zhouzirui/line-relay/backend/internal/handler/webhook"
	"github.com/zhouzirui/line-relay/backend/internal/model/line"
	"github.com/zhouzirui/line-relay/backend/internal/observe"
)

type countingDispatcher struct {
	n int
}

func (d *countingDispatcher) Dispatch(context.Context, line.Event) { d.n++ }

func newTestRouter(t *testing.T, withMetrics bool) (http.Handler, *countingDispatcher) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	d := &countingDispatcher{}

	var (
		metricsHandler http.Handler
		metrics        *observe.Metrics
	)
	if withMetrics {
		provider, err := observe.InitProvider()
		if err != nil {
			t.Fatalf("InitProvider: %v", err)
		}
		t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
		if metrics, err = observe.NewMetrics(provider.MeterProvider); err != nil {
			t.Fatalf("NewMetrics: %v", err)
		}
		metricsHandler = provider.Handler()
	}

	r := NewRouter(
		webhook.New("secret", d, logger, metrics),
		health.New(),
		metricsHandler,
		metrics,
		logger,
	)
	return r, d
}

func TestRouterCallback(t *testing.T) {
	r, d := newTestRouter(t, false)

	body := []byte(`{"destination":"U1","events":[{"type":"message","mode":"active","timestamp":1,` +
		`"source":{"type":"user","userId":"U2"},"webhookEventId":"01H","deliveryContext":{"isRedelivery":false},` +
		`"replyToken":"tok","message":{"type":"text","id":"1","quoteToken":"q","text":"hi there"}}]}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || resp.Body.String() != "OK" {
		t.Fatalf("response = %d %q", resp.Code, resp.Body.String())
	}
	if d.n != 1 {
		t.Fatalf("dispatched %d events, want 1", d.n)
	}
}

func TestRouterCallbackMethod(t *testing.T) {
	r, _ := newTestRouter(t, false)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/callback", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /callback = %d, want 405", resp.Code)
	}
}

func TestRouterProbes(t *testing.T) {
	r, _ := newTestRouter(t, false)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("/metrics without provider = %d, want 404", resp.Code)
	}
}

func TestRouterMetrics(t *testing.T) {
	r, _ := newTestRouter(t, true)

	// one rejected callback so the signature counter has a sample
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(`{"events":[]}`))
	req.Header.Set("X-Line-Signature", "invalid")
	r.ServeHTTP(httptest.NewRecorder(), req)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", resp.Code)
	}
	out := resp.Body.String()
	for _, want := range []string{"relay_signature_failures", "relay_http_request_duration"} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
