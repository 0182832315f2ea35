package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/credgenhq/credgen/internal/conversation"
	"github.com/credgenhq/credgen/internal/session"
)

type echoService struct{}

func (echoService) ProcessTurn(ctx context.Context, req conversation.TurnRequest) (*conversation.Response, error) {
	return &conversation.Response{SessionID: req.SessionID, Message: "ok", State: session.StateCollectingInfo}, nil
}

func (echoService) RunStage(ctx context.Context, req conversation.StageRequest) (*conversation.Response, error) {
	return &conversation.Response{SessionID: req.SessionID, State: session.StateOffer}, nil
}

func (echoService) Reset(ctx context.Context, sessionID string) (*conversation.Response, error) {
	return &conversation.Response{SessionID: sessionID, State: session.StateGreeting}, nil
}

func TestHealthEndpoint(t *testing.T) {
	r := New(&Config{})
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(&Config{MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestConversationRoutesMounted(t *testing.T) {
	store := session.NewMemoryStore(30 * time.Minute)
	handler := conversation.NewHandler(echoService{}, store, nil)
	r := New(&Config{ConversationHandler: handler})
	server := httptest.NewServer(r)
	defer server.Close()

	body := bytes.NewReader([]byte(`{"session_id":"app-1","message":"hi"}`))
	resp, err := http.Post(server.URL+"/conversations/turn", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("turn status = %d", resp.StatusCode)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	r := New(&Config{})
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
