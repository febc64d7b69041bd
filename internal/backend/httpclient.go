// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend executes command envelopes through the platform HTTP API
// instead of a direct database connection.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentfit/cli/internal/command"
	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/httperrors"
	"agentfit/cli/internal/logging"

	"go.uber.org/zap"
)

// Endpoint paths relative to the API base URL.
const (
	ExecutePath = "/api/agent/execute"
	VersionPath = "/api/version"
)

// HTTP is an executor over the platform REST API.
type HTTP struct {
	// baseURL is the base URL for all HTTP requests (e.g., "http://localhost:3000")
	baseURL string
	// token is sent as a bearer token when set
	token  string
	client *http.Client
	log    *zap.Logger
}

var _ command.Executor = (*HTTP)(nil)

// NewHTTP creates an API executor. A zero timeout means 10 seconds.
func NewHTTP(baseURL, token string, timeout time.Duration, log *zap.Logger) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     logging.OrNop(log),
	}
}

// Execute posts env to the execute endpoint and decodes the response. A
// non-2xx status with a decodable body is returned as that body; transport
// errors carry a network category.
func (h *HTTP) Execute(ctx context.Context, env command.Envelope) command.Response {
	if err := command.ValidateEnvelope(env); err != nil {
		return command.Failed(err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return command.Failed(apperr.Wrap(apperr.ExecutionError, "encode request", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+ExecutePath, bytes.NewReader(payload))
	if err != nil {
		return command.Failed(apperr.Wrap(apperr.ExecutionError, "build request", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if env.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", env.IdempotencyKey)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	h.log.Debug("posting envelope", zap.String("request_id", env.RequestID), zap.String("url", h.baseURL+ExecutePath))
	resp, err := h.client.Do(req)
	if err != nil {
		return command.Failed(apperr.Wrap(apperr.ExecutionError, "execute request failed", httperrors.Tag(err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return command.Failed(apperr.Wrap(apperr.ExecutionError, "read response", err))
	}

	var out command.Response
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode >= 300 {
			return command.Failed(apperr.Newf(apperr.ExecutionError, "execute returned HTTP %d: %s", resp.StatusCode, snippet(body)))
		}
		return command.Failed(apperr.Wrap(apperr.ExecutionError, "decode response", err))
	}
	if out.Trace == nil {
		out.Trace = []command.TraceEntry{}
	}
	if resp.StatusCode >= 300 {
		out.Success = false
		if out.Error == "" {
			out.Error = fmt.Sprintf("execute returned HTTP %d", resp.StatusCode)
		}
	}
	return out
}

// GetVersion calls GET /api/version and returns the version string when available.
// No authentication required. It doubles as a connectivity check.
func (h *HTTP) GetVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+VersionPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", httperrors.Tag(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "unknown", nil
	}
	var out struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Version == "" {
		return "unknown", nil
	}
	return out.Version, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
