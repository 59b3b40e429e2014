package main

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runServer did not stop after cancel")
	}
}

func TestReadinessCheckersWithoutSpeech(t *testing.T) {
	checks := readinessCheckers(nil, nil)
	if len(checks) != 2 {
		t.Fatalf("got %d checkers", len(checks))
	}
	for _, c := range checks {
		if !c.Optional {
			t.Fatalf("%s should be optional when unconfigured", c.Name)
		}
		if err := c.Check(context.Background()); err == nil {
			t.Fatalf("%s should report not configured", c.Name)
		}
	}
}
