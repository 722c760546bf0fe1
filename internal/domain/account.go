package domain

import "sort"

// Pattern is a detection tag attached to an account.
type Pattern string

const (
	PatternCycle        Pattern = "cycle"
	PatternFanIn        Pattern = "fan_in"
	PatternFanOut       Pattern = "fan_out"
	PatternShellChain   Pattern = "shell_chain"
	PatternHighVelocity Pattern = "high_velocity"
	PatternRoundAmounts Pattern = "round_amounts"
)

// PatternSet is a set of detection tags. Adding a tag twice is a no-op.
type PatternSet map[Pattern]struct{}

// Add inserts p into the set.
func (s PatternSet) Add(p Pattern) {
	s[p] = struct{}{}
}

// Has reports whether p is in the set.
func (s PatternSet) Has(p Pattern) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the tags in lexicographic order.
func (s PatternSet) Sorted() []Pattern {
	out := make([]Pattern, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Account is the per-run assessment of one ledger account.
type Account struct {
	ID                string     `json:"account_id"`
	InDegree          int        `json:"in_degree"`
	OutDegree         int        `json:"out_degree"`
	TotalTransactions int        `json:"total_transactions"`
	DetectedPatterns  PatternSet `json:"-"`
	SuspicionScore    float64    `json:"suspicion_score"`
	RingID            string     `json:"ring_id,omitempty"`
	RingIDs           []string   `json:"ring_ids,omitempty"`
}

// SuspiciousAccount is the report view of a flagged account.
type SuspiciousAccount struct {
	AccountID        string    `json:"account_id"`
	SuspicionScore   float64   `json:"suspicion_score"`
	DetectedPatterns []Pattern `json:"detected_patterns"`
	RingID           string    `json:"ring_id,omitempty"`
	RingIDs          []string  `json:"ring_ids,omitempty"`
}

// ToSuspicious converts an account assessment to its report view.
func (a *Account) ToSuspicious() SuspiciousAccount {
	return SuspiciousAccount{
		AccountID:        a.ID,
		SuspicionScore:   a.SuspicionScore,
		DetectedPatterns: a.DetectedPatterns.Sorted(),
		RingID:           a.RingID,
		RingIDs:          a.RingIDs,
	}
}
