// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package issue defines the failure taxonomy of a fitness run and the
// message-based classifier that assigns it.
package issue

import (
	"regexp"
	"strings"
)

// Classification is the cause bucket of one issue.
type Classification string

const (
	// ScenarioContract means the intent could not be safely translated or validated.
	ScenarioContract Classification = "scenario_contract"
	// SchemaConstraint means the store rejected the operation.
	SchemaConstraint Classification = "schema_constraint"
	// ExpectationMismatch means the operation ran but an explicit expectation failed.
	// It is never inferred from a message.
	ExpectationMismatch Classification = "expectation_mismatch"
	// ExecutionError is everything else.
	ExecutionError Classification = "execution_error"
)

// Issue is one classified failure surfaced at run level.
type Issue struct {
	SuiteID        string         `json:"suiteId"`
	SuiteName      string         `json:"suiteName"`
	Classification Classification `json:"classification"`
	Message        string         `json:"message"`
}

var (
	reContract = regexp.MustCompile(`validation_error|unsafe_mutation|unknown_table|unknown_column|unknown table|unknown column|could not resolve|not found in (the )?(schema|catalog)|does not satisfy the contract|unsafe|ambiguous|without filters|translation failed|exactly one of prompt or request`)
	reSchema   = regexp.MustCompile(`violates|constraint|not-null|check|foreign key|duplicate key|enum`)
)

// Classify buckets a failure message. Contract patterns are checked before
// store constraint patterns; anything unmatched is an execution error.
func Classify(message string) Classification {
	lower := strings.ToLower(message)
	switch {
	case reContract.MatchString(lower):
		return ScenarioContract
	case reSchema.MatchString(lower):
		return SchemaConstraint
	}
	return ExecutionError
}
