package backend

import (
	"context"
	"fmt"
	"log/slog"

	"sxledger/internal/sheets/google"
	"sxledger/internal/sheets/memory"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateWriter(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsWriter(ctx, config)
	case MemoryBackend:
		f.logger.Info("Initialized memory mirror backend")
		return &Result{Writer: memory.New()}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsWriter(ctx context.Context, config Config) (*Result, error) {
	client, err := google.New(ctx, google.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	if names := config.AccountNames; names != nil {
		client = client.WithAccountNames(func(id string) string {
			name, err := names(ctx, id)
			if err != nil || name == "" {
				return id
			}
			return name
		})
	}

	f.logger.Info("Initialized Google Sheets mirror backend", "spreadsheet_id", config.GoogleSpreadsheetID)
	return &Result{Writer: client}, nil
}
