// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package orchestrator

// EventType enumerates progress event kinds.
type EventType string

const (
	// EventSuiteStarted is emitted before a suite source is loaded.
	EventSuiteStarted EventType = "suite_started"
	// EventSuiteFinished carries the suite result.
	EventSuiteFinished EventType = "suite_finished"
	// EventRunFinished carries the run summary.
	EventRunFinished EventType = "run_finished"
)

// Event is a progress notification. Only a subset of fields is set depending on Type.
type Event struct {
	Type EventType `json:"type"`

	// Suite events
	Index int    `json:"index,omitempty"` // 1-based among enabled suites
	Count int    `json:"count,omitempty"`
	Suite string `json:"suite,omitempty"`
	Kind  Kind   `json:"kind,omitempty"`

	Result  *SuiteResult `json:"result,omitempty"`
	Summary *Summary     `json:"summary,omitempty"`
}

// Observer receives progress events. Events are delivered synchronously on
// the run goroutine.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }
