package poll

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPollerDeliversRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing Accept header, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"name": "pod-1.evt", "namespace": "default", "type": "Warning", "reason": "BackOff", "count": 3},
			{"name": "pod-2.evt", "namespace": "kube-system", "type": "Normal", "reason": "Pulled", "count": 1}
		]`))
	}))
	defer server.Close()

	out := make(chan Result, 1)
	p := New("prod-east", server.URL, time.Hour, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case r := <-out:
		if r.Err != nil {
			t.Fatalf("unexpected poll error: %v", r.Err)
		}
		if r.Cluster != "prod-east" {
			t.Errorf("cluster = %q, want prod-east", r.Cluster)
		}
		if len(r.Records) != 2 {
			t.Fatalf("got %d records, want 2", len(r.Records))
		}
		if r.Records[0].Reason != "BackOff" || r.Records[1].Reason != "Pulled" {
			t.Errorf("records out of order: %q, %q", r.Records[0].Reason, r.Records[1].Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first poll result")
	}
}

func TestPollerReportsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	out := make(chan Result, 1)
	p := New("prod-east", server.URL, time.Hour, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case r := <-out:
		if r.Err == nil {
			t.Fatal("expected error result for 500 response")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll result")
	}
}

func TestPollerReportsDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "a list"}`))
	}))
	defer server.Close()

	out := make(chan Result, 1)
	p := New("prod-east", server.URL, time.Hour, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case r := <-out:
		if r.Err == nil {
			t.Fatal("expected decode error for non-array body")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll result")
	}
}
