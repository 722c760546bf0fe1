// Package velocity provides rolling-window transaction velocity.
package velocity

import (
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
)

// Defaults for the high-velocity signal.
const (
	DefaultWindow    = 24 * time.Hour
	DefaultThreshold = 5 // strictly more than this many transactions
)

// Service calculates peak transaction velocity for accounts of one graph.
type Service struct {
	g         *graph.Graph
	window    time.Duration
	threshold int
}

// NewService creates a velocity service with the default window.
func NewService(g *graph.Graph) *Service {
	return &Service{
		g:         g,
		window:    DefaultWindow,
		threshold: DefaultThreshold,
	}
}

// IsHighVelocity reports whether the account exceeded the threshold inside
// the service window.
func (s *Service) IsHighVelocity(accountID string) bool {
	n := s.g.Node(accountID)
	if n == nil {
		return false
	}
	return PeakCount(n.All, s.window) > s.threshold
}

// PeakCount returns the maximum number of timestamp-sorted transactions
// that fall inside one inclusive window [t, t+window].
func PeakCount(txs []domain.Transaction, window time.Duration) int {
	best, j := 0, 0
	for i := range txs {
		limit := txs[i].Timestamp.Add(window)
		for j < len(txs) && !txs[j].Timestamp.After(limit) {
			j++
		}
		if j-i > best {
			best = j - i
		}
	}
	return best
}
