// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentfit/cli/internal/command"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryEnvelope() command.Envelope {
	return command.NewEnvelope(&command.Query{Table: "customers", Filters: []command.Filter{}}, command.EnvelopeOptions{DryRun: true, IdempotencyKey: "idem-1"})
}

func TestExecute(t *testing.T) {
	var got map[string]any
	var headers http.Header
	r := chi.NewRouter()
	r.Post(ExecutePath, func(w http.ResponseWriter, req *http.Request) {
		headers = req.Header.Clone()
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"trace":[{"action":"query","table":"customers","rows":1,"durationMs":3}],"result":{"rows":[{"id":9}]}}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	h := NewHTTP(srv.URL+"/", "tok", 0, nil)
	env := queryEnvelope()
	resp := h.Execute(context.Background(), env)

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))
	assert.Equal(t, "idem-1", headers.Get("Idempotency-Key"))
	assert.Equal(t, env.RequestID, got["requestId"])
	assert.Equal(t, true, got["dryRun"])
	assert.Equal(t, "query", got["command"].(map[string]any)["type"])
	require.Len(t, resp.Trace, 1)
	assert.Equal(t, "customers", resp.Trace[0].Table)
	assert.Equal(t, map[string]any{"rows": []any{map[string]any{"id": float64(9)}}}, resp.Result)
}

func TestExecuteErrors(t *testing.T) {
	r := chi.NewRouter()
	r.Post(ExecutePath, func(w http.ResponseWriter, req *http.Request) {
		switch req.Header.Get("Authorization") {
		case "Bearer rejected":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"success":true,"error":"UNSAFE_MUTATION: refusing to delete"}`))
		case "Bearer bare":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	tests := []struct {
		token string
		want  string
	}{
		{"rejected", "UNSAFE_MUTATION: refusing to delete"},
		{"bare", "execute returned HTTP 403"},
		{"other", "execute returned HTTP 500: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			resp := NewHTTP(srv.URL, tt.token, 0, nil).Execute(context.Background(), queryEnvelope())
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.want)
			assert.NotNil(t, resp.Trace)
		})
	}
}

func TestExecuteTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	resp := NewHTTP(url, "", 0, nil).Execute(context.Background(), queryEnvelope())

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "EXECUTION_ERROR: execute request failed: connection refused")
}

func TestExecuteInvalidEnvelope(t *testing.T) {
	env := command.NewEnvelope(&command.Mutate{Action: command.ActionUpdate, Table: "customers", Filters: []command.Filter{}}, command.EnvelopeOptions{})
	resp := NewHTTP("http://127.0.0.1:1", "", 0, nil).Execute(context.Background(), env)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "VALIDATION_ERROR")
}

func TestGetVersion(t *testing.T) {
	r := chi.NewRouter()
	r.Get(VersionPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"version":"1.4.2"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	v, err := NewHTTP(srv.URL, "", 0, nil).GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", v)
}
