// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package journey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"agentfit/cli/internal/httperrors"
	"agentfit/cli/internal/issue"
	"agentfit/cli/internal/logging"
	"agentfit/cli/internal/template"

	"go.uber.org/zap"
)

// Runner executes journeys over HTTP.
type Runner struct {
	client *http.Client
	token  string
	log    *zap.Logger
	expr   *exprEvaluator
}

// Config configures a Runner.
type Config struct {
	// Client defaults to an http.Client with Timeout.
	Client  *http.Client
	Timeout time.Duration
	// Token is sent as a bearer token unless a step sets Authorization itself.
	Token  string
	Logger *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ev, err := newExprEvaluator()
	if err != nil {
		return nil, err
	}
	return &Runner{client: client, token: cfg.Token, log: logging.OrNop(cfg.Logger), expr: ev}, nil
}

// Options are the run-level inputs of one journey.
type Options struct {
	// BaseURL is used when the pack has none.
	BaseURL string
	// ContinueOnFailure applies when the pack does not set its own value.
	ContinueOnFailure bool
	// Variables is the shared bag visible to the journey. It is not modified.
	Variables map[string]any
}

// Run executes pack. Failures are reported in the result, never returned.
func (r *Runner) Run(ctx context.Context, pack Pack, opts Options) Result {
	res := Result{
		Name:      pack.Name,
		Total:     len(pack.Steps),
		Steps:     []StepResult{},
		Issues:    []Issue{},
		Variables: map[string]any{},
	}

	state := template.NewState()
	bag, err := state.Resolve(pack.Variables, opts.Variables)
	if err != nil {
		// The first step stands in for the variables block; the rest are skipped.
		res.Failed = min(1, res.Total)
		res.Skipped = res.Total - res.Failed
		res.Issues = append(res.Issues, Issue{
			StepName:       "variables",
			Classification: issue.Classify(err.Error()),
			Message:        err.Error(),
		})
		return res
	}

	baseURL := pack.BaseURL
	if baseURL == "" {
		baseURL = opts.BaseURL
	}
	cont := opts.ContinueOnFailure
	if pack.Defaults.ContinueOnFailure != nil {
		cont = *pack.Defaults.ContinueOnFailure
	}

	for i, step := range pack.Steps {
		sr, transportErr := r.runStep(ctx, state, bag, baseURL, pack.Defaults.Headers, step, i)
		res.Steps = append(res.Steps, sr)
		for k, v := range sr.Captures {
			res.Variables[k] = v
		}
		if sr.Success {
			res.Passed++
			r.log.Debug("journey step passed", zap.String("journey", pack.Name), zap.String("step", sr.Name), zap.Int("status", sr.Status))
			continue
		}

		res.Failed++
		cls := issue.ExpectationMismatch
		if transportErr {
			cls = issue.Classify(sr.Failures[0])
		}
		res.Issues = append(res.Issues, Issue{StepName: sr.Name, Classification: cls, Message: sr.Name + ": " + sr.Failures[0]})
		r.log.Debug("journey step failed", zap.String("journey", pack.Name), zap.String("step", sr.Name), zap.Strings("failures", sr.Failures))

		if !cont {
			break
		}
	}

	res.Skipped = res.Total - res.Passed - res.Failed
	res.Success = res.Failed == 0 && res.Skipped == 0
	return res
}

type response struct {
	status  int
	headers map[string]any
	body    any
	text    string
}

// runStep executes one step. The boolean is true when the step failed before
// any expectation could be evaluated.
func (r *Runner) runStep(ctx context.Context, state *template.State, bag map[string]any, baseURL string, defaultHeaders map[string]string, step Step, idx int) (StepResult, bool) {
	sr := StepResult{
		ID:       step.ID,
		Name:     step.Name,
		Method:   strings.ToUpper(step.Method),
		Failures: []string{},
		Captures: map[string]any{},
	}
	if sr.ID == "" {
		sr.ID = fmt.Sprintf("step_%d", idx+1)
	}
	if sr.Name == "" {
		sr.Name = sr.ID
	}
	if sr.Method == "" {
		sr.Method = http.MethodGet
	}

	start := time.Now()
	resp, target, err := r.call(ctx, state, bag, baseURL, defaultHeaders, step, sr.Method)
	sr.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		sr.Status = 0
		sr.URL = ""
		sr.Failures = []string{err.Error()}
		return sr, true
	}
	sr.Status = resp.status
	sr.URL = target
	sr.Body = resp.body

	if step.Expect != nil {
		sr.Failures = append(sr.Failures, r.check(*step.Expect, resp)...)
	}

	for _, c := range step.Captures {
		v, ok := read(resp, c.From, c.Path)
		if !ok || v == nil {
			switch {
			case c.DefaultValue != nil:
				v = c.DefaultValue
			case c.Required:
				sr.Failures = append(sr.Failures, fmt.Sprintf("required capture %q missing at %s", c.As, describeLocation(c.From, c.Path)))
				continue
			default:
				continue
			}
		}
		sr.Captures[c.As] = v
		bag[c.As] = v
	}

	sr.Success = len(sr.Failures) == 0
	return sr, false
}

func (r *Runner) call(ctx context.Context, state *template.State, bag map[string]any, baseURL string, defaultHeaders map[string]string, step Step, method string) (response, string, error) {
	path, err := state.Text(step.Path, bag)
	if err != nil {
		return response{}, "", err
	}
	target, err := buildURL(baseURL, path)
	if err != nil {
		return response{}, "", err
	}

	if len(step.Query) > 0 {
		q, err := state.Interpolate(step.Query, bag)
		if err != nil {
			return response{}, "", err
		}
		target = appendQuery(target, q.(map[string]any))
	}

	headers := make(map[string]string, len(defaultHeaders)+len(step.Headers))
	for k, v := range defaultHeaders {
		headers[k] = v
	}
	for k, v := range step.Headers {
		headers[k] = v
	}
	h, err := state.Interpolate(headers, bag)
	if err != nil {
		return response{}, "", err
	}
	headers = h.(map[string]string)

	var body io.Reader
	if step.Body != nil {
		b, err := state.Interpolate(step.Body, bag)
		if err != nil {
			return response{}, "", err
		}
		raw, err := encodeBody(b, headers)
		if err != nil {
			return response{}, "", err
		}
		body = bytes.NewReader(raw)
		if !hasHeader(headers, "Content-Type") {
			headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return response{}, "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if r.token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/plain, */*")
	}

	r.log.Debug("journey request", zap.String("method", method), zap.String("url", logging.Mask(target)))
	httpResp, err := r.client.Do(req)
	if err != nil {
		return response{}, "", httperrors.Tag(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return response{}, "", fmt.Errorf("read response: %w", err)
	}

	resp := response{
		status:  httpResp.StatusCode,
		headers: make(map[string]any, len(httpResp.Header)),
		text:    string(raw),
	}
	for k := range httpResp.Header {
		resp.headers[strings.ToLower(k)] = httpResp.Header.Get(k)
	}
	if strings.Contains(strings.ToLower(httpResp.Header.Get("Content-Type")), "json") && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &resp.body); err != nil {
			return response{}, "", fmt.Errorf("parse JSON response: %w", err)
		}
	} else {
		resp.body = resp.text
	}
	return resp, target, nil
}

func buildURL(baseURL, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if baseURL == "" {
		return "", fmt.Errorf("no base URL configured for path %q", path)
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := strings.TrimRight(baseURL, "/") + path
	if _, err := url.Parse(target); err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", target, err)
	}
	return target, nil
}

// appendQuery adds q to target in key order; slice values become repeated parameters.
func appendQuery(target string, q map[string]any) string {
	vals := url.Values{}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := q[k].(type) {
		case []any:
			for _, item := range v {
				vals.Add(k, template.Stringify(item))
			}
		case nil:
		default:
			vals.Add(k, template.Stringify(v))
		}
	}
	enc := vals.Encode()
	if enc == "" {
		return target
	}
	if strings.Contains(target, "?") {
		return target + "&" + enc
	}
	return target + "?" + enc
}

func encodeBody(b any, headers map[string]string) ([]byte, error) {
	if s, ok := b.(string); ok {
		for k, v := range headers {
			if strings.EqualFold(k, "Content-Type") && !strings.Contains(strings.ToLower(v), "json") {
				return []byte(s), nil
			}
		}
	}
	return json.Marshal(b)
}

func hasHeader(h map[string]string, name string) bool {
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// check evaluates every expectation without short-circuiting.
func (r *Runner) check(exp Expect, resp response) []string {
	var failures []string
	if exp.Status != nil && *exp.Status != resp.status {
		failures = append(failures, fmt.Sprintf("expected status %d, got %d", *exp.Status, resp.status))
	}
	if exp.Success != nil {
		if got := succeeded(resp); got != *exp.Success {
			failures = append(failures, fmt.Sprintf("expected success=%t, got %t", *exp.Success, got))
		}
	}
	if exp.BodyContains != "" && !strings.Contains(resp.text, exp.BodyContains) {
		failures = append(failures, fmt.Sprintf("response body does not contain %q", exp.BodyContains))
	}
	for _, a := range exp.Asserts {
		failures = append(failures, r.checkAssert(a, resp)...)
	}
	return failures
}

// succeeded is true for 2xx responses whose JSON body does not carry success=false.
func succeeded(resp response) bool {
	ok := resp.status >= 200 && resp.status < 300
	if m, isMap := resp.body.(map[string]any); isMap {
		if s, isBool := m["success"].(bool); isBool {
			ok = ok && s
		}
	}
	return ok
}

func (r *Runner) checkAssert(a Assert, resp response) []string {
	var failures []string
	loc := describeLocation(a.Source, a.Path)
	v, found := read(resp, a.Source, a.Path)
	present := found && v != nil

	if a.Exists != nil {
		if *a.Exists && !present {
			failures = append(failures, fmt.Sprintf("assert %s: expected value to exist", loc))
		}
		if !*a.Exists && present {
			failures = append(failures, fmt.Sprintf("assert %s: expected no value, got %s", loc, template.Stringify(v)))
		}
	}
	if a.Equals != nil && !equalValues(a.Equals, v) {
		failures = append(failures, fmt.Sprintf("assert %s: expected %s, got %s", loc, template.Stringify(a.Equals), template.Stringify(v)))
	}
	if a.Contains != nil && !strings.Contains(template.Stringify(v), *a.Contains) {
		failures = append(failures, fmt.Sprintf("assert %s: %s does not contain %q", loc, template.Stringify(v), *a.Contains))
	}
	if a.Expr != "" {
		ok, err := r.expr.eval(a.Expr, v, resp.body, resp.status, resp.headers)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("assert %s: %v", loc, err))
		case !ok:
			failures = append(failures, fmt.Sprintf("assert %s: expression %q evaluated to false", loc, a.Expr))
		}
	}
	return failures
}

// read fetches a value from the selected part of the response.
func read(resp response, src Source, path string) (any, bool) {
	switch src {
	case FromStatus:
		return resp.status, true
	case FromHeaders:
		if path == "" {
			return resp.headers, true
		}
		return template.Lookup(resp.headers, strings.ToLower(path))
	default:
		if path == "" || path == "$" {
			return resp.body, true
		}
		return template.Lookup(resp.body, strings.TrimPrefix(path, "$."))
	}
}

func describeLocation(src Source, path string) string {
	if src == "" {
		src = FromBody
	}
	if path == "" {
		return string(src)
	}
	return string(src) + "." + path
}

// equalValues compares by canonical JSON so that 42 and 42.0 are equal.
func equalValues(want, got any) bool {
	a, errA := json.Marshal(want)
	b, errB := json.Marshal(got)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}
