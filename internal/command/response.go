// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package command

import "context"

// Executor runs validated envelopes. Failures are reported in the Response.
type Executor interface {
	Execute(ctx context.Context, env Envelope) Response
}

// Response is what an executor returns for one envelope.
type Response struct {
	Success bool         `json:"success"`
	Trace   []TraceEntry `json:"trace"`
	Result  any          `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// TraceEntry records one statement an executor ran.
type TraceEntry struct {
	Action     Action `json:"action"`
	Table      string `json:"table"`
	Statement  string `json:"statement,omitempty"`
	Rows       int64  `json:"rows"`
	DurationMs int64  `json:"durationMs"`
}

// Failed builds a failed Response from err.
func Failed(err error) Response {
	return Response{Trace: []TraceEntry{}, Error: err.Error()}
}
