// Package memory is an in-process ledger mirror used when no spreadsheet
// is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"sxledger/internal/core"
	ports "sxledger/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]any
	refs map[string]string
}

var _ ports.LedgerWriter = (*Store)(nil)

func New() *Store {
	return &Store{refs: make(map[string]string)}
}

// AppendTransaction stores the rows and returns a synthetic reference.
func (s *Store) AppendTransaction(_ context.Context, txn core.Transaction) (string, error) {
	if err := txn.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[txn.ID]; ok {
		return ref, nil
	}
	first := len(s.rows) + 1
	s.rows = append(s.rows, ports.TransactionRows(txn, nil)...)
	ref := fmt.Sprintf("mem:%d-%d", first, len(s.rows))
	s.refs[txn.ID] = ref
	return ref, nil
}

// Rows returns a copy of everything mirrored so far.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}
