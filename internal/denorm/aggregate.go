package denorm

import (
	"fmt"
	"strings"
)

// AggregateKind is the closed set of reducible aggregates a Tracker supports.
type AggregateKind int

const (
	AggregateCount AggregateKind = iota + 1
	AggregateSum
)

// Aggregate describes how child rows reduce into the tracked parent column.
type Aggregate struct {
	Kind   AggregateKind
	Source string
}

// Count tracks the number of eligible child rows.
func Count() Aggregate {
	return Aggregate{Kind: AggregateCount}
}

// Sum tracks the total of an integer child column over eligible rows.
func Sum(source string) Aggregate {
	return Aggregate{Kind: AggregateSum, Source: strings.TrimSpace(source)}
}

func (a Aggregate) validate() error {
	switch a.Kind {
	case AggregateCount:
		return nil
	case AggregateSum:
		if a.Source == "" {
			return fmt.Errorf("denorm: sum aggregate requires a source column")
		}
		return nil
	default:
		return fmt.Errorf("denorm: unsupported aggregate kind %d", a.Kind)
	}
}

// String is used in registration failure messages.
func (a Aggregate) String() string {
	switch a.Kind {
	case AggregateCount:
		return "count"
	case AggregateSum:
		return "sum(" + a.Source + ")"
	default:
		return fmt.Sprintf("aggregate(%d)", a.Kind)
	}
}
