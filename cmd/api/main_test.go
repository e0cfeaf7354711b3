package main

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestJanitorInterval(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		24 * time.Hour:         10 * time.Minute,
		20 * time.Minute:       5 * time.Minute,
		2 * time.Second:        time.Second,
		500 * time.Millisecond: time.Second,
	}
	for ttl, want := range cases {
		if got := janitorInterval(ttl); got != want {
			t.Fatalf("janitorInterval(%s) = %s, want %s", ttl, got, want)
		}
	}
}

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
			t.Fatalf("runServer err: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after cancel")
	}
}
