package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tendril/internal/worker"
	httpAdapter "github.com/aretw0/tendril/pkg/adapters/http"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/conv"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/observability"
	"github.com/aretw0/tendril/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv   *httptest.Server
	store *store.Store
	hub   *memory.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(memory.NewStore())
	hub := memory.NewHub()

	_, err := s.Agents.Create(context.Background(), domain.AgentForCreate{
		UID:   "helper",
		Name:  "Helper",
		Model: "fc-mock-echo-prompt",
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	observability.NewMetrics(reg)

	handler := httpAdapter.NewHandler(conv.NewService(s, hub), s.Agents,
		httpAdapter.WithHub(hub),
		httpAdapter.WithGatherer(reg),
	)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: s, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf strings.Builder
	_, err = bufio.NewReader(resp.Body).WriteTo(&buf)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = f.do(t, http.MethodGet, "/info", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tendril-http")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tendril_resolve_failures_total")
}

func TestAgents(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/agents", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var agents []domain.Agent
	require.NoError(t, json.Unmarshal(body, &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, "Helper", agents[0].Name)

	resp, _ = f.do(t, http.MethodGet, "/agents/helper", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/agents/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConversationFlow(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/convs", `{"agent_uid":"helper","title":"support"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var c domain.Conversation
	require.NoError(t, json.Unmarshal(body, &c))
	assert.Equal(t, "support", c.Title)

	base := "/convs/" + jsonInt(c.ID)

	resp, body = f.do(t, http.MethodPost, base+"/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "hello", msg.Content)

	resp, body = f.do(t, http.MethodGet, base+"/messages", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(body, &msgs))
	assert.Len(t, msgs, 1)

	resp, body = f.do(t, http.MethodGet, base+"/steps", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var steps []domain.Step
	require.NoError(t, json.Unmarshal(body, &steps))
	require.Len(t, steps, 1)
	assert.Equal(t, msg.ID, steps[0].OrigMsgID)
}

func TestErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"Unknown Agent", http.MethodPost, "/convs", `{"agent_uid":"ghost"}`, http.StatusNotFound},
		{"Missing Agent UID", http.MethodPost, "/convs", `{}`, http.StatusBadRequest},
		{"Bad Body", http.MethodPost, "/convs", `{`, http.StatusBadRequest},
		{"Bad Conv ID", http.MethodGet, "/convs/abc/messages", "", http.StatusBadRequest},
		{"Unknown Conv", http.MethodGet, "/convs/999/messages", "", http.StatusNotFound},
		{"Unknown Conv Message", http.MethodPost, "/convs/999/messages", `{"text":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	t.Run("Empty Text", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/convs", `{"agent_uid":"helper"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var c domain.Conversation
		require.NoError(t, json.Unmarshal(body, &c))

		resp, _ = f.do(t, http.MethodPost, "/convs/"+jsonInt(c.ID)+"/messages", `{"text":"  "}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSubscribeEvents(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/convs/7/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, "event: ping", scanner.Text())

	// Another conversation's event is filtered out.
	require.NoError(t, worker.Notify(ctx, f.hub, domain.WorkNew, 8))
	require.NoError(t, worker.Notify(ctx, f.hub, domain.WorkDone, 7))

	var events []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
		if strings.HasPrefix(line, "data: {") {
			assert.Contains(t, line, `"conv_id":7`)
			break
		}
	}
	assert.Equal(t, []string{"work_done"}, events)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
