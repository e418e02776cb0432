package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
	"github.com/arclight-c2/arclight/internal/server/dto"
	authentication "github.com/arclight-c2/arclight/pkg/auth"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/arclight-c2/arclight/pkg/middleware"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	log, err := logger.NewLoggerFromEnv("test")
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	cfg := &Config{
		AgentID:   "5bb0e9fa-ea0d-4a14-9e2e-46e7a83f8fd8",
		PSK:       "test-psk",
		ServerURL: serverURL,
	}
	return NewClient(cfg, 5*time.Second, log)
}

func TestBeaconSignsExactBodyBytes(t *testing.T) {
	var gotSignatureValid bool
	var gotAgentID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agent/beacon" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		gotAgentID = r.Header.Get(middleware.HeaderAgentID)
		gotSignatureValid = authentication.VerifySignature("test-psk", body, r.Header.Get(middleware.HeaderSignature))
		json.NewEncoder(w).Encode(dto.BeaconResponse{
			NewTasks: []dto.TaskInstruction{{TaskID: "t-1", Type: models.TaskTypeExecuteCommand}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Beacon(context.Background(), &dto.BeaconRequest{Status: models.AgentStatusOnline})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAgentID != "5bb0e9fa-ea0d-4a14-9e2e-46e7a83f8fd8" {
		t.Fatalf("expected agent id header, got %q", gotAgentID)
	}
	if !gotSignatureValid {
		t.Fatalf("expected signature to verify over the received body")
	}
	if len(resp.NewTasks) != 1 || resp.NewTasks[0].TaskID != "t-1" {
		t.Fatalf("expected task in response, got %+v", resp.NewTasks)
	}
}

func TestBeaconNonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Beacon(context.Background(), &dto.BeaconRequest{Status: models.AgentStatusOnline}); err == nil {
		t.Fatalf("expected error on 401")
	}
}

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server.Close()
	if err := client.Probe(context.Background()); err == nil {
		t.Fatalf("expected error once server is down")
	}
}

func TestSendResults(t *testing.T) {
	var received []models.TaskResult

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agent/task_results" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode results: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.SendResults(context.Background(), []models.TaskResult{
		{TaskID: "t-1", Status: models.TaskStatusCompleted, Output: "done"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(received) != 1 || received[0].TaskID != "t-1" {
		t.Fatalf("expected result delivered, got %+v", received)
	}
}
