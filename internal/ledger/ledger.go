package ledger

import (
	"context"
	"sync"

	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
)

// Ledger records the matches a command has already been issued for.
// Admit must be an atomic check-and-set.
type Ledger interface {
	// Admit returns true the first time a match is seen, false afterwards
	Admit(ctx context.Context, match models.Match) (bool, error)

	// Len returns the number of admitted matches
	Len(ctx context.Context) (int, error)

	// Close releases the ledger
	Close(ctx context.Context) error
}

// MemoryLedger keeps admitted matches in process memory for the life of
// the process. Entries are never expired.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[models.Match]struct{}
}

// NewMemoryLedger creates an empty in-process ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		seen: make(map[models.Match]struct{}),
	}
}

// Admit records the match and reports whether it was new
func (l *MemoryLedger) Admit(_ context.Context, match models.Match) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[match]; ok {
		return false, nil
	}
	l.seen[match] = struct{}{}
	return true, nil
}

// Len returns the number of admitted matches
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen), nil
}

// Close is a no-op
func (l *MemoryLedger) Close(_ context.Context) error {
	return nil
}
