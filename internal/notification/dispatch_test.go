package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNotice(tr Transport) *Notice {
	return &Notice{Transport: tr, TemplateCode: CodePickupReady, Title: "Ready", Content: "Pick it up"}
}

func TestNotify_EmailWithoutCommandLogs(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(
		WithEmailCommand(""),
		WithOutput(&out),
		WithDispatchLogger(quietLogger()),
		WithContacts(func(ctx context.Context, id int64) (Contact, bool) {
			return Contact{Email: "patron@example.org"}, true
		}),
	)

	results := d.Notify(context.Background(), 7, testNotice(TransportEmail))
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if !results[0].Success || results[0].Channel != "email" {
		t.Errorf("result = %+v, want successful email", results[0])
	}
	if !strings.Contains(out.String(), "patron@example.org") {
		t.Errorf("log output missing recipient: %q", out.String())
	}
}

func TestNotify_NoRecipient(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(WithOutput(&out), WithDispatchLogger(quietLogger()))

	for _, tr := range []Transport{TransportEmail, TransportSMS} {
		results := d.Notify(context.Background(), 7, testNotice(tr))
		if len(results) != 1 || results[0].Success {
			t.Errorf("%s: results = %+v, want one failure", tr, results)
		}
	}
	if !strings.Contains(out.String(), "Pick it up") {
		t.Error("undeliverable notices should still be logged")
	}
}

func TestNotify_SMS(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(
		WithOutput(&out),
		WithDispatchLogger(quietLogger()),
		WithContacts(func(ctx context.Context, id int64) (Contact, bool) {
			return Contact{Phone: "+46700000000"}, true
		}),
	)
	results := d.Notify(context.Background(), 7, testNotice(TransportSMS))
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(out.String(), "+46700000000") {
		t.Errorf("log output missing phone: %q", out.String())
	}
}

func TestNotify_UnknownTransport(t *testing.T) {
	d := NewDispatcher(WithOutput(io.Discard), WithDispatchLogger(quietLogger()))
	results := d.Notify(context.Background(), 1, testNotice(Transport("pigeon")))
	if len(results) != 1 || results[0].Success {
		t.Fatalf("results = %+v, want one failure", results)
	}
}

func TestNotify_Webhook(t *testing.T) {
	var received webhookPayload
	var event string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event = r.Header.Get("X-Illsync-Event")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDispatcher(
		WithEmailCommand(""),
		WithWebhook(server.URL),
		WithOutput(io.Discard),
		WithDispatchLogger(quietLogger()),
		WithContacts(func(ctx context.Context, id int64) (Contact, bool) {
			return Contact{Email: "a@b.c"}, true
		}),
	)
	results := d.Notify(context.Background(), 42, testNotice(TransportEmail))
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[1].Success || results[1].Channel != "webhook" {
		t.Errorf("webhook result = %+v", results[1])
	}
	if received.PatronID != 42 || received.Notice == nil || received.Notice.Title != "Ready" {
		t.Errorf("payload = %+v", received)
	}
	if event != CodePickupReady {
		t.Errorf("event header = %q", event)
	}
}

func TestNotify_WebhookError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDispatcher(WithWebhook(server.URL), WithOutput(io.Discard), WithDispatchLogger(quietLogger()))
	results := d.Notify(context.Background(), 1, testNotice(TransportSMS))
	last := results[len(results)-1]
	if last.Success || !strings.Contains(last.Error, "500") {
		t.Errorf("webhook result = %+v, want 500 failure", last)
	}
}
