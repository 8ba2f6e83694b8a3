// Package backend builds the ledger mirror writer selected by
// configuration.
package backend

import (
	"context"

	"sxledger/internal/sheets"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result contains the writer and an optional cleanup function.
type Result struct {
	Writer  sheets.LedgerWriter
	Cleanup CleanupFunc
}

// Factory creates mirror writers.
type Factory interface {
	CreateWriter(ctx context.Context, config Config) (*Result, error)
}

// AccountNamer maps an account ID to the name shown in mirrored rows.
type AccountNamer func(ctx context.Context, id string) (string, error)

// Config holds configuration for writer creation.
type Config struct {
	Type BackendType

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// AccountNames is optional; rows show raw account IDs without it.
	AccountNames AccountNamer
}

// BackendType names a mirror backend.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SheetsBackend BackendType = "sheets"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is known.
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
