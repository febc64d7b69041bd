// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package command

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	apperr "agentfit/cli/internal/errors"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed command.schema.json
var schemaSource string

const schemaURL = "https://agentfit.local/schemas/command.schema.json"

// Contract validates commands and envelopes against the JSON Schema.
// Batch steps reference the command definition through $ref, so nesting depth
// is only bounded by the payload.
type Contract struct {
	command  *jsonschema.Schema
	envelope *jsonschema.Schema
}

// NewContract compiles the embedded schema.
func NewContract() (*Contract, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
		return nil, fmt.Errorf("command schema load failed: %w", err)
	}
	cmd, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("command schema compile failed: %w", err)
	}
	env, err := c.Compile(schemaURL + "#/$defs/envelope")
	if err != nil {
		return nil, fmt.Errorf("envelope schema compile failed: %w", err)
	}
	return &Contract{command: cmd, envelope: env}, nil
}

var (
	defaultOnce     sync.Once
	defaultContract *Contract
)

// DefaultContract returns the process-wide contract. The schema is embedded, so
// a compile failure is a build defect and panics.
func DefaultContract() *Contract {
	defaultOnce.Do(func() {
		c, err := NewContract()
		if err != nil {
			panic(err)
		}
		defaultContract = c
	})
	return defaultContract
}

// Validate checks a typed command.
func (c *Contract) Validate(cmd Command) error {
	if cmd == nil {
		return apperr.New(apperr.ValidationError, "command is required")
	}
	doc, err := toDocument(cmd)
	if err != nil {
		return apperr.Wrap(apperr.ValidationError, "command is not serializable", err)
	}
	return check(c.command, doc, "command")
}

// ValidateEnvelope checks a typed envelope including its command.
func (c *Contract) ValidateEnvelope(env Envelope) error {
	if env.Command == nil {
		return apperr.New(apperr.ValidationError, "envelope has no command")
	}
	doc, err := toDocument(env)
	if err != nil {
		return apperr.Wrap(apperr.ValidationError, "envelope is not serializable", err)
	}
	return check(c.envelope, doc, "envelope")
}

// DecodeCommand validates raw JSON and decodes it into a Command.
func (c *Contract) DecodeCommand(raw []byte) (Command, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "command is not valid JSON", err)
	}
	if err := check(c.command, doc, "command"); err != nil {
		return nil, err
	}
	cmd, err := Unmarshal(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "command could not be decoded", err)
	}
	return cmd, nil
}

// DecodeEnvelope validates raw JSON and decodes it into an Envelope, assigning
// a request id when the payload has none.
func (c *Contract) DecodeEnvelope(raw []byte) (Envelope, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return Envelope{}, apperr.Wrap(apperr.ValidationError, "envelope is not valid JSON", err)
	}
	if err := check(c.envelope, doc, "envelope"); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, apperr.Wrap(apperr.ValidationError, "envelope could not be decoded", err)
	}
	if env.RequestID == "" {
		env.RequestID = uuid.NewString()
	}
	return env, nil
}

// Validate checks cmd against the default contract.
func Validate(cmd Command) error { return DefaultContract().Validate(cmd) }

// ValidateEnvelope checks env against the default contract.
func ValidateEnvelope(env Envelope) error { return DefaultContract().ValidateEnvelope(env) }

// DecodeEnvelope decodes raw against the default contract.
func DecodeEnvelope(raw []byte) (Envelope, error) { return DefaultContract().DecodeEnvelope(raw) }

// DecodeCommand decodes raw against the default contract.
func DecodeCommand(raw []byte) (Command, error) { return DefaultContract().DecodeCommand(raw) }

func toDocument(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeDocument(b)
}

// decodeDocument decodes raw for schema validation. Numbers stay json.Number
// so integer checks see the literal the caller sent.
func decodeDocument(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return doc, nil
}

func check(s *jsonschema.Schema, doc any, what string) error {
	err := s.Validate(doc)
	if err == nil {
		return nil
	}
	return apperr.Wrap(apperr.ValidationError, what+" does not satisfy the contract", fmt.Errorf("%s", describe(err)))
}

// describe flattens a schema error into its leaf causes. oneOf branches for a
// different command type are dropped so only the relevant branch is reported.
func describe(err error) string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	leaves := collectLeaves(verr, true)
	if len(leaves) == 0 {
		leaves = collectLeaves(verr, false)
	}
	if len(leaves) == 0 {
		return verr.Message
	}
	sort.Strings(leaves)
	leaves = dedupe(leaves)
	if len(leaves) > 5 {
		leaves = append(leaves[:5], fmt.Sprintf("and %d more", len(leaves)-5))
	}
	return strings.Join(leaves, "; ")
}

func collectLeaves(root *jsonschema.ValidationError, pruneBranches bool) []string {
	var leaves []string
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, fmt.Sprintf("at '%s': %s", loc, v.Message))
			return
		}
		oneOf := strings.HasSuffix(v.KeywordLocation, "/oneOf")
		for _, c := range v.Causes {
			if pruneBranches && oneOf && wrongBranch(c) {
				continue
			}
			walk(c)
		}
	}
	walk(root)
	return leaves
}

// wrongBranch reports whether v failed because the object's own "type"
// discriminant selects another branch.
func wrongBranch(v *jsonschema.ValidationError) bool {
	target := v.InstanceLocation + "/type"
	var found bool
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if found {
			return
		}
		if len(e.Causes) == 0 {
			found = e.InstanceLocation == target && strings.HasSuffix(e.KeywordLocation, "/type/const")
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(v)
	return found
}

func dedupe(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}
