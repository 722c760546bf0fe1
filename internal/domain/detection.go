package domain

import (
	"strings"
	"time"
)

// Cycle is an elementary directed circuit of 3 to 5 accounts, rotated so
// that the lexicographically smallest member comes first.
type Cycle struct {
	Members []string `json:"members"`
}

// Key returns a stable identity for the cycle.
func (c Cycle) Key() string {
	return strings.Join(c.Members, ">")
}

// Direction is the side of a smurfing flag.
type Direction string

const (
	DirectionFanIn  Direction = "fan_in"
	DirectionFanOut Direction = "fan_out"
)

// Pattern returns the account tag matching the direction.
func (d Direction) Pattern() Pattern {
	if d == DirectionFanOut {
		return PatternFanOut
	}
	return PatternFanIn
}

// SmurfingFlag records an account that touched too many distinct
// counterparties inside one 72-hour window.
type SmurfingFlag struct {
	Account                string    `json:"account"`
	Direction              Direction `json:"direction"`
	WindowStart            time.Time `json:"window_start"`
	WindowEnd              time.Time `json:"window_end"`
	DistinctCounterparties int       `json:"distinct_counterparties"`
	Counterparties         []string  `json:"counterparties"`
}

// ShellChain is a path of at least 3 accounts whose interior accounts are
// low-activity pass-throughs.
type ShellChain struct {
	Path []string `json:"path"`
}

// Interior returns the accounts between the first and last hop.
func (c ShellChain) Interior() []string {
	if len(c.Path) < 3 {
		return nil
	}
	return c.Path[1 : len(c.Path)-1]
}

// Key returns a stable identity for the chain.
func (c ShellChain) Key() string {
	return strings.Join(c.Path, ">")
}
