package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestTelegramSenderPayload(t *testing.T) {
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botsecret/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("secret", "-100123")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "Settlement halted", "pool 7"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.ChatID != "-100123" || got.ParseMode != "Markdown" {
		t.Errorf("payload = %+v", got)
	}
	if got.Text != "*Settlement halted*\npool 7" {
		t.Errorf("text = %q", got.Text)
	}
}

func TestTelegramSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("secret", "nope")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("Send = %v, want status 400 error", err)
	}
}

func TestDiscordSenderPayload(t *testing.T) {
	var got discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		// Success is 204, not 200.
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "Divergence", "cycle 9"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Content != "**Divergence**\ncycle 9" {
		t.Errorf("content = %q", got.Content)
	}
}

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func TestNotifierFiltersEvents(t *testing.T) {
	rec := &recordingSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := New([]Sender{rec}, []string{EventSettlementHalted}, logger)

	if err := n.Notify(context.Background(), EventDivergence, "skip", "m"); err != nil {
		t.Fatalf("Notify filtered event: %v", err)
	}
	if err := n.Notify(context.Background(), EventSettlementHalted, "deliver", "m"); err != nil {
		t.Fatalf("Notify allowed event: %v", err)
	}
	if len(rec.titles) != 1 || rec.titles[0] != "deliver" {
		t.Errorf("delivered = %v, want [deliver]", rec.titles)
	}
}

func TestNotifierEmptyFilterDeliversAll(t *testing.T) {
	rec := &recordingSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := New([]Sender{rec}, nil, logger)

	if err := n.Notify(context.Background(), EventCycleResolved, "any", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(rec.titles) != 1 {
		t.Errorf("delivered = %v, want one alert", rec.titles)
	}
}
