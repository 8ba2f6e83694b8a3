package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != 2 || d.Day() != 29 {
		t.Fatalf("unexpected date %s", d)
	}
	if d, err := ParseDate(""); err != nil || !d.IsEmpty() {
		t.Fatalf("expected empty date, got %v (err=%v)", d, err)
	}
	if _, err := ParseDate("2024-13-01"); err == nil {
		t.Fatalf("expected error for bad month")
	}
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		D Date `json:"d"`
	}
	b, err := json.Marshal(wrapper{D: NewDate(2024, 3, 5)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"d":"2024-03-05"}` {
		t.Fatalf("unexpected json %s", b)
	}
	var w wrapper
	if err := json.Unmarshal([]byte(`{"d":"2023-12-31"}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.D.Compare(NewDate(2023, 12, 31)) != 0 {
		t.Fatalf("unexpected date %s", w.D)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, 12, 30).AddDays(3)
	if d.String() != "2025-01-02" {
		t.Fatalf("unexpected %s", d)
	}
	if NewDate(2024, 1, 1).Compare(Date{}) <= 0 {
		t.Fatalf("zero date must sort first")
	}
	loc := time.FixedZone("x", 5*3600)
	if got := DateOf(time.Date(2024, 6, 1, 23, 30, 0, 0, loc)); got.String() != "2024-06-01" {
		t.Fatalf("DateOf kept wrong day: %s", got)
	}
}

func TestSplitScrub(t *testing.T) {
	eur := Commodity{Mnemonic: "EUR", Places: 2}
	usd := Commodity{Mnemonic: "USD", Places: 2}

	s := Split{Value: decimal.RequireFromString("10.004"), Amount: decimal.Zero}
	s.Scrub(Account{ID: "a", Name: "A", Commodity: eur}, eur)
	if !s.Amount.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected amount to follow value, got %s", s.Amount)
	}

	s = Split{Value: decimal.NewFromInt(10), Amount: decimal.NewFromInt(9)}
	s.Scrub(Account{ID: "a", Name: "A", Commodity: usd}, eur)
	if !s.Amount.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("foreign amount must be kept, got %s", s.Amount)
	}
}

func TestTransactionImbalance(t *testing.T) {
	txn := Transaction{
		PostDate: NewDate(2024, 1, 1),
		Splits: []Split{
			{AccountID: "a", Value: decimal.NewFromInt(50)},
			{AccountID: "b", Value: decimal.NewFromInt(-50)},
		},
	}
	if err := txn.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !txn.Imbalance().IsZero() {
		t.Fatalf("expected balanced, got %s", txn.Imbalance())
	}
	txn.Splits[1].AccountID = ""
	if err := txn.Validate(); err == nil {
		t.Fatalf("expected error for missing account")
	}
}

func TestTemplateTransactionValidate(t *testing.T) {
	good := TemplateTransaction{
		Description: "Rent",
		Splits: []TemplateSplit{
			{AccountID: "expenses:rent", DebitFormula: "800"},
			{AccountID: "assets:bank", CreditFormula: "800"},
		},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []TemplateTransaction{
		{Description: "no splits"},
		{Description: "blank account", Splits: []TemplateSplit{{AccountID: " "}}},
	}
	for i, tt := range bads {
		if err := tt.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
