// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package command defines the closed set of operations the execution layer accepts:
// a Query, a Mutate (insert, update or delete) or a Batch of further commands.
//
// Command is a sealed interface; the only implementations are *Query, *Mutate and
// *Batch, so a type switch over them is exhaustive. On the wire every command
// carries a "type" discriminant. Every payload, whether produced by the translator
// or written by hand in a scenario pack, must pass the JSON Schema contract in
// this package before it may reach an executor.
package command

// Kind is the discriminant of a Command.
type Kind string

const (
	KindQuery  Kind = "query"
	KindMutate Kind = "mutate"
	KindBatch  Kind = "batch"
)

// Action is the operation a command performs. Query is only used for inference
// results; a Mutate carries one of Insert, Update or Delete.
type Action string

const (
	ActionQuery  Action = "query"
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Op is a filter operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpLike    Op = "like"
	OpILike   Op = "ilike"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Ops lists every operator in contract order.
var Ops = []Op{OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike, OpIn, OpIsNull, OpNotNull}

// TakesValue reports whether op requires a value operand.
func (o Op) TakesValue() bool { return o != OpIsNull && o != OpNotNull }

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Command is one canonical operation. See the package doc for the closed set.
type Command interface {
	Kind() Kind
	isCommand()
}

// Filter restricts the rows a command touches.
// Value is a []any for OpIn and absent for OpIsNull and OpNotNull.
type Filter struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
}

// Sort orders query results by one column.
type Sort struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction,omitempty"`
}

// Query reads rows. A nil Select means every column.
type Query struct {
	Table   string   `json:"table"`
	Select  []string `json:"select,omitempty"`
	Filters []Filter `json:"filters"`
	Sort    []Sort   `json:"sort"`
	Limit   *int     `json:"limit,omitempty"`
	Offset  *int     `json:"offset,omitempty"`
}

// Mutate writes rows.
type Mutate struct {
	Action    Action         `json:"action"`
	Table     string         `json:"table"`
	Values    map[string]any `json:"values,omitempty"`
	Filters   []Filter       `json:"filters"`
	Returning []string       `json:"returning,omitempty"`
}

// Batch runs its steps in order. Steps may themselves be batches.
type Batch struct {
	Steps []Command `json:"steps"`
}

func (*Query) Kind() Kind  { return KindQuery }
func (*Mutate) Kind() Kind { return KindMutate }
func (*Batch) Kind() Kind  { return KindBatch }

func (*Query) isCommand()  {}
func (*Mutate) isCommand() {}
func (*Batch) isCommand()  {}

// ActionOf returns the action a command performs; batches report the action of
// their first step.
func ActionOf(c Command) Action {
	switch c := c.(type) {
	case *Query:
		return ActionQuery
	case *Mutate:
		return c.Action
	case *Batch:
		if len(c.Steps) > 0 {
			return ActionOf(c.Steps[0])
		}
	}
	return ActionQuery
}

// TableOf returns the table a command targets, or "" for batches.
func TableOf(c Command) string {
	switch c := c.(type) {
	case *Query:
		return c.Table
	case *Mutate:
		return c.Table
	}
	return ""
}

// Walk calls fn for c and, depth first, for every nested batch step.
// It stops at the first error fn returns.
func Walk(c Command, fn func(Command) error) error {
	if err := fn(c); err != nil {
		return err
	}
	if b, ok := c.(*Batch); ok {
		for _, s := range b.Steps {
			if err := Walk(s, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
