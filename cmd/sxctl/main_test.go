package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `accounts:
  - id: bank
    name: Assets:Bank
    commodity: eur
  - id: rent
    name: Expenses:Rent
    commodity: eur
schedules:
  - id: rent
    name: Rent
    auto_create: true
    recurrence:
      frequency: monthly
      start: 2024-01-01
    templates:
      - description: Rent
        splits:
          - account: rent
            debit: "800"
          - account: bank
            credit: "800"
`

func run(t *testing.T, db string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db", db}, args...))
	require.NoError(t, root.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestSxctl(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "sx.db")
	file := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(seedYAML), 0o644))

	out := run(t, db, "import", file)
	assert.Contains(t, out, "schedules created: 1")

	out = run(t, db, "list")
	assert.Contains(t, out, "Rent")
	assert.Contains(t, out, "2024-01-01")

	out = run(t, db, "run", "--date", "2024-03-15")
	assert.Contains(t, out, "created 3 transaction(s)")

	out = run(t, db, "list")
	assert.Contains(t, out, "2024-03-01")
	assert.Contains(t, out, "2024-04-01")

	out = run(t, db, "cashflow", "--from", "2024-04-01", "--to", "2024-04-30")
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out, "800.00")
	assert.Contains(t, out, "-800.00")

	out = run(t, db, "export")
	assert.Contains(t, out, "frequency: monthly")
	assert.Contains(t, out, "2024-01-01")

	icsPath := filepath.Join(dir, "sx.ics")
	run(t, db, "ics", "--days", "30", "-o", icsPath)
	ics, err := os.ReadFile(icsPath)
	require.NoError(t, err)
	assert.Contains(t, string(ics), "BEGIN:VCALENDAR")
}

func TestSxctl_BadDate(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "sx.db"), "run", "--date", "tomorrow"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}
