package backend

import (
	"context"
	"strings"
	"testing"

	"sxledger/internal/config"
	"sxledger/internal/sheets/memory"
)

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range BackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("sqlite").IsValid() {
		t.Error("sqlite is not a mirror backend")
	}
}

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		app     *config.Config
		want    BackendType
		wantErr bool
	}{
		{name: "nil config", app: nil, wantErr: true},
		{name: "empty defaults to memory", app: &config.Config{}, want: MemoryBackend},
		{name: "sheets", app: &config.Config{MirrorBackend: "sheets", GoogleSpreadsheetID: "abc"}, want: SheetsBackend},
		{name: "unknown", app: &config.Config{MirrorBackend: "excel"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAppConfig(tt.app, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromAppConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Type != tt.want {
				t.Errorf("Type = %s, want %s", got.Type, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		errorString string
	}{
		{name: "memory", config: Config{Type: MemoryBackend}},
		{name: "unknown", config: Config{Type: "excel"}, errorString: "invalid backend type"},
		{name: "sheets without id", config: Config{Type: SheetsBackend, GoogleServiceAccountJSON: "{}"}, errorString: "Spreadsheet ID"},
		{name: "sheets without credentials", config: Config{Type: SheetsBackend, GoogleSpreadsheetID: "abc"}, errorString: "service account"},
		{name: "sheets", config: Config{Type: SheetsBackend, GoogleSpreadsheetID: "abc", GoogleServiceAccountFile: "sa.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errorString == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorString) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.errorString)
			}
		})
	}
}

func TestFactory_CreateMemoryWriter(t *testing.T) {
	res, err := NewFactory(nil).CreateWriter(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateWriter() error = %v", err)
	}
	if _, ok := res.Writer.(*memory.Store); !ok {
		t.Errorf("Writer = %T, want *memory.Store", res.Writer)
	}
	if res.Cleanup != nil {
		t.Error("memory backend needs no cleanup")
	}
}

func TestFactory_RejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateWriter(context.Background(), Config{Type: SheetsBackend})
	if err == nil {
		t.Fatal("expected error for sheets without spreadsheet")
	}
}
