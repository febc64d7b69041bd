// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package journey

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agentfit/cli/internal/issue"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func boolPtr(b bool) *bool    { return &b }
func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

type fakeAPI struct {
	*httptest.Server
	seen   []string
	auth   []string
	accept []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			api.seen = append(api.seen, req.Method+" "+req.URL.RequestURI())
			api.auth = append(api.auth, req.Header.Get("Authorization"))
			api.accept = append(api.accept, req.Header.Get("Accept"))
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/api/orders", func(w http.ResponseWriter, req *http.Request) {
		var in map[string]any
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil || req.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"id": "ord_" + in["ref"].(string), "total": 42, "items": []any{map[string]any{"sku": "A1"}}},
		})
	})
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"id": chi.URLParam(req, "id"), "status": "open", "tags": req.URL.Query()["tag"]},
		})
	})
	r.Get("/api/soft-fail", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error":"nope"}`))
	})
	r.Get("/api/text", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("plain pong"))
	})
	r.Get("/api/broken", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":`))
	})
	api.Server = httptest.NewServer(r)
	t.Cleanup(api.Close)
	return api
}

func newTestRunner(t *testing.T, token string) *Runner {
	t.Helper()
	transport := &http.Transport{}
	t.Cleanup(transport.CloseIdleConnections)
	r, err := NewRunner(Config{Client: &http.Client{Transport: transport}, Token: token, Logger: zap.NewNop()})
	require.NoError(t, err)
	return r
}

func TestRunCaptureChaining(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	pack := Pack{
		Name:    "orders",
		BaseURL: api.URL,
		Steps: []Step{
			{
				Name:   "create order",
				Method: "post",
				Path:   "/api/orders",
				Body:   map[string]any{"ref": "{{ref}}"},
				Expect: &Expect{Status: intPtr(201), Success: boolPtr(true)},
				Captures: []Capture{
					{As: "orderId", Path: "data.id", Required: true},
					{As: "requestId", From: FromHeaders, Path: "X-Request-Id"},
				},
			},
			{
				Name:   "fetch order",
				Method: "GET",
				Path:   "/api/orders/{{orderId}}",
				Query:  map[string]any{"tag": []any{"a", "b"}},
				Expect: &Expect{
					Status:       intPtr(200),
					BodyContains: `"status":"open"`,
					Asserts: []Assert{
						{Path: "data.id", Equals: "ord_r1"},
						{Path: "data.status", Exists: boolPtr(true), Contains: strPtr("op")},
						{Path: "data.tags", Expr: "size(value) == 2 && status == 200"},
					},
				},
			},
		},
	}

	res := r.Run(context.Background(), pack, Options{Variables: map[string]any{"ref": "r1"}})

	require.True(t, res.Success, "issues: %+v steps: %+v", res.Issues, res.Steps)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, "ord_r1", res.Variables["orderId"])
	assert.Equal(t, "req-1", res.Variables["requestId"])
	assert.Equal(t, []string{"POST /api/orders", "GET /api/orders/ord_r1?tag=a&tag=b"}, api.seen)
	assert.Equal(t, api.URL+"/api/orders/ord_r1?tag=a&tag=b", res.Steps[1].URL)
	assert.Equal(t, "POST", res.Steps[0].Method)
	assert.Equal(t, "step_1", res.Steps[0].ID)
}

func TestRunAccumulatesFailures(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	pack := Pack{
		Name:    "checks",
		BaseURL: api.URL,
		Steps: []Step{{
			Name:   "soft fail",
			Method: "GET",
			Path:   "/api/soft-fail",
			Expect: &Expect{
				Status:       intPtr(201),
				Success:      boolPtr(true),
				BodyContains: "missing",
				Asserts: []Assert{
					{Path: "error", Exists: boolPtr(false), Equals: "yes", Contains: strPtr("zzz")},
				},
			},
			Captures: []Capture{{As: "token", Path: "data.token", Required: true}},
		}},
	}

	res := r.Run(context.Background(), pack, Options{ContinueOnFailure: true})

	require.False(t, res.Success)
	require.Len(t, res.Steps, 1)
	failures := res.Steps[0].Failures
	require.Len(t, failures, 7)
	assert.Equal(t, "expected status 201, got 200", failures[0])
	assert.Equal(t, "expected success=true, got false", failures[1])
	assert.Contains(t, failures[2], "does not contain")
	assert.Contains(t, failures[3], "expected no value")
	assert.Contains(t, failures[4], "expected yes, got nope")
	assert.Contains(t, failures[5], `does not contain "zzz"`)
	assert.Contains(t, failures[6], `required capture "token" missing at body.data.token`)

	require.Len(t, res.Issues, 1)
	assert.Equal(t, issue.ExpectationMismatch, res.Issues[0].Classification)
	assert.Equal(t, "soft fail: expected status 201, got 200", res.Issues[0].Message)
	assert.Equal(t, "soft fail", res.Issues[0].StepName)
}

func TestRunCaptureDefault(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	pack := Pack{
		Name:    "defaults",
		BaseURL: api.URL,
		Steps: []Step{{
			Name:     "text",
			Method:   "GET",
			Path:     "/api/text",
			Expect:   &Expect{BodyContains: "pong"},
			Captures: []Capture{{As: "cursor", Path: "next", DefaultValue: "start"}, {As: "code", From: FromStatus}},
		}},
	}
	res := r.Run(context.Background(), pack, Options{})

	require.True(t, res.Success)
	assert.Equal(t, "start", res.Variables["cursor"])
	assert.Equal(t, 200, res.Variables["code"])
	assert.Equal(t, "plain pong", res.Steps[0].Body)
}

func TestRunTransportError(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	pack := Pack{
		Name:    "broken",
		BaseURL: api.URL,
		Steps: []Step{
			{Name: "bad json", Method: "GET", Path: "/api/broken"},
			{Name: "never", Method: "GET", Path: "/api/text"},
		},
	}
	res := r.Run(context.Background(), pack, Options{ContinueOnFailure: false})

	require.False(t, res.Success)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, 0, res.Steps[0].Status)
	assert.Equal(t, "", res.Steps[0].URL)
	require.Len(t, res.Steps[0].Failures, 1)
	assert.Contains(t, res.Steps[0].Failures[0], "parse JSON response")
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, issue.ExecutionError, res.Issues[0].Classification)
}

func TestRunUnresolvedToken(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	res := r.Run(context.Background(), Pack{
		Name:    "unresolved",
		BaseURL: api.URL,
		Steps:   []Step{{Name: "lookup", Method: "GET", Path: "/api/orders/{{missing}}"}},
	}, Options{})

	require.False(t, res.Success)
	assert.Empty(t, api.seen)
	assert.Contains(t, res.Steps[0].Failures[0], "unresolved template token {{missing}}")
}

func TestRunContinueOnFailure(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	steps := []Step{
		{Name: "first", Method: "GET", Path: "/api/soft-fail", Expect: &Expect{Success: boolPtr(true)}},
		{Name: "second", Method: "GET", Path: "/api/text"},
	}

	tests := []struct {
		name      string
		pack      *bool
		run       bool
		wantSteps int
	}{
		{"run default continues", nil, true, 2},
		{"run default stops", nil, false, 1},
		{"pack overrides run", boolPtr(false), true, 1},
		{"pack continues", boolPtr(true), false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pack := Pack{Name: "coF", BaseURL: api.URL, Defaults: Defaults{ContinueOnFailure: tt.pack}, Steps: steps}
			res := r.Run(context.Background(), pack, Options{ContinueOnFailure: tt.run})
			assert.Len(t, res.Steps, tt.wantSteps)
			assert.Equal(t, 1, res.Failed)
			assert.False(t, res.Success)
		})
	}
}

func TestRunHeadersAndToken(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "secret")

	pack := Pack{
		Name:     "auth",
		Defaults: Defaults{Headers: map[string]string{"X-Tenant": "{{tenant}}"}},
		Steps: []Step{
			{Name: "default token", Method: "GET", Path: "api/text"},
			{Name: "override", Method: "GET", Path: "/api/text", Headers: map[string]string{"Authorization": "Bearer {{other}}"}},
		},
	}
	res := r.Run(context.Background(), pack, Options{
		BaseURL:   api.URL + "/",
		Variables: map[string]any{"tenant": "t1", "other": "abc"},
	})

	require.True(t, res.Success, "%+v", res.Issues)
	assert.Equal(t, []string{"Bearer secret", "Bearer abc"}, api.auth)
}

func TestRunPackVariables(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	shared := map[string]any{"prefix": "shared"}
	pack := Pack{
		Name:      "vars",
		BaseURL:   api.URL,
		Variables: map[string]any{"ref": "{{prefix}}-1"},
		Steps: []Step{{
			Name: "create", Method: "POST", Path: "/api/orders",
			Body:     map[string]any{"ref": "{{ref}}"},
			Captures: []Capture{{As: "orderId", Path: "data.id"}},
		}},
	}
	res := r.Run(context.Background(), pack, Options{Variables: shared})

	require.True(t, res.Success)
	assert.Equal(t, "ord_shared-1", res.Variables["orderId"])
	assert.NotContains(t, shared, "orderId")
}

func TestRunStepAcceptHeader(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	res := r.Run(context.Background(), Pack{
		Name:    "accept",
		BaseURL: api.URL,
		Steps: []Step{
			{Name: "csv", Method: "GET", Path: "/api/text", Headers: map[string]string{"Accept": "text/csv"}},
			{Name: "default", Method: "GET", Path: "/api/text"},
		},
	}, Options{})

	require.True(t, res.Success, "%+v", res.Issues)
	assert.Equal(t, []string{"text/csv", "application/json, text/plain, */*"}, api.accept)
}

func TestRunChainedPackVariables(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	pack := Pack{
		Name:    "chain",
		BaseURL: api.URL,
		Variables: map[string]any{
			"a": "{{b}}",
			"b": "{{c}}-1",
			"c": "{{d}}",
			"d": "{{prefix}}",
		},
		Steps: []Step{{
			Name: "create", Method: "POST", Path: "/api/orders",
			Body:     map[string]any{"ref": "{{a}}"},
			Captures: []Capture{{As: "orderId", Path: "data.id"}},
		}},
	}
	res := r.Run(context.Background(), pack, Options{Variables: map[string]any{"prefix": "shared"}})

	require.True(t, res.Success, "%+v", res.Issues)
	assert.Equal(t, "ord_shared-1", res.Variables["orderId"])
}

func TestRunVariableFailureCounts(t *testing.T) {
	api := newFakeAPI(t)
	r := newTestRunner(t, "")

	tests := []struct {
		name        string
		steps       []Step
		wantFailed  int
		wantSkipped int
	}{
		{"no steps", nil, 0, 0},
		{"one step", []Step{{Name: "a", Method: "GET", Path: "/api/text"}}, 1, 0},
		{"three steps", []Step{
			{Name: "a", Method: "GET", Path: "/api/text"},
			{Name: "b", Method: "GET", Path: "/api/text"},
			{Name: "c", Method: "GET", Path: "/api/text"},
		}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Run(context.Background(), Pack{
				Name:      "bad vars",
				BaseURL:   api.URL,
				Variables: map[string]any{"ok": "{{bad}}", "bad": "{{missing}}"},
				Steps:     tt.steps,
			}, Options{})

			assert.False(t, res.Success)
			assert.Equal(t, tt.wantFailed, res.Failed)
			assert.Equal(t, tt.wantSkipped, res.Skipped)
			assert.LessOrEqual(t, res.Failed+res.Skipped, res.Total)
			require.Len(t, res.Issues, 1)
			assert.Equal(t, "variables", res.Issues[0].StepName)
			assert.Contains(t, res.Issues[0].Message, `variable "bad": unresolved template token {{missing}}`)
		})
	}
	assert.Empty(t, api.seen)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base, path, want string
		wantErr          bool
	}{
		{"http://h:1", "/a", "http://h:1/a", false},
		{"http://h:1/", "a", "http://h:1/a", false},
		{"", "https://other/x", "https://other/x", false},
		{"", "/a", "", true},
	}
	for _, tt := range tests {
		got, err := buildURL(tt.base, tt.path)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestAppendQuery(t *testing.T) {
	got := appendQuery("http://h/x?a=1", map[string]any{"z": 1, "b": []any{"x", true}, "n": nil})
	assert.True(t, strings.HasPrefix(got, "http://h/x?a=1&"))
	assert.Equal(t, "http://h/x?a=1&b=x&b=true&z=1", got)
}
