// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package command

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Scope is the tenant, location and actor context of a request.
type Scope struct {
	BizID       string `json:"bizId,omitempty"`
	LocationID  string `json:"locationId,omitempty"`
	ActorUserID string `json:"actorUserId,omitempty"`
}

// IsZero reports whether no scope field is set.
func (s Scope) IsZero() bool { return s == Scope{} }

// Merge returns s with empty fields filled from fallback.
func (s Scope) Merge(fallback Scope) Scope {
	if s.BizID == "" {
		s.BizID = fallback.BizID
	}
	if s.LocationID == "" {
		s.LocationID = fallback.LocationID
	}
	if s.ActorUserID == "" {
		s.ActorUserID = fallback.ActorUserID
	}
	return s
}

// Envelope wraps one command with the request context an executor needs.
// It is built once per translation or scenario step and not modified afterwards.
type Envelope struct {
	RequestID      string         `json:"requestId"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	DryRun         bool           `json:"dryRun"`
	Scope          Scope          `json:"scope"`
	Command        Command        `json:"command"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// EnvelopeOptions are the optional parts of a new envelope.
type EnvelopeOptions struct {
	IdempotencyKey string
	DryRun         bool
	Scope          Scope
	Metadata       map[string]any
}

// NewEnvelope wraps cmd with a fresh request id.
func NewEnvelope(cmd Command, opts EnvelopeOptions) Envelope {
	return Envelope{
		RequestID:      uuid.NewString(),
		IdempotencyKey: opts.IdempotencyKey,
		DryRun:         opts.DryRun,
		Scope:          opts.Scope,
		Command:        cmd,
		Metadata:       opts.Metadata,
	}
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	var raw struct {
		alias
		Command json.RawMessage `json:"command"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Envelope(raw.alias)
	if len(raw.Command) == 0 || string(raw.Command) == "null" {
		return fmt.Errorf("envelope has no command")
	}
	cmd, err := Unmarshal(raw.Command)
	if err != nil {
		return fmt.Errorf("command: %w", err)
	}
	e.Command = cmd
	return nil
}
