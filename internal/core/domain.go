package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

const dateLayout = "2006-01-02"

type (
	RepetitionTypes string

	// Date is a calendar day normalised to UTC midnight.
	Date struct {
		time.Time
	}

	Commodity struct {
		Mnemonic string
		Places   int32 // decimal places of the smallest unit
	}

	Account struct {
		ID        string
		Name      string
		Commodity Commodity
	}

	Split struct {
		ID        string
		AccountID string
		Memo      string
		Action    string
		Value     decimal.Decimal // in the transaction currency
		Amount    decimal.Decimal // in the account commodity
	}

	Transaction struct {
		ID          string
		ScheduleID  string // originating schedule, empty for manual entries
		Description string
		Num         string
		Notes       string
		PostDate    Date
		Currency    Commodity
		Splits      []Split
		CreatedAt   time.Time
	}

	// TemplateSplit carries the account reference and the formulas a
	// scheduled split is computed from.
	TemplateSplit struct {
		AccountID     string
		Memo          string
		Action        string
		DebitFormula  string
		CreditFormula string
	}

	TemplateTransaction struct {
		Description string
		Num         string
		Notes       string
		Splits      []TemplateSplit
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyAccount     = errors.New("empty account reference")
	ErrNoSplits         = errors.New("transaction has no splits")
	ErrEmptyMnemonic    = errors.New("empty commodity mnemonic")
	ErrAccountNotFound  = errors.New("account not found")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Time.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Compare orders two dates; a zero date sorts before every valid date.
func (d Date) Compare(o Date) int {
	return d.Time.Compare(o.Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the promoted time.Time encoding with YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

func (c Commodity) Equal(o Commodity) bool {
	return strings.EqualFold(c.Mnemonic, o.Mnemonic)
}

func (c Commodity) Validate() error {
	if strings.TrimSpace(c.Mnemonic) == "" {
		return ErrEmptyMnemonic
	}
	if c.Places < 0 || c.Places > 9 {
		return fmt.Errorf("invalid commodity places %d", c.Places)
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("empty account name")
	}
	return a.Commodity.Validate()
}

// Scrub brings the split's amount in line with its value when the account
// is denominated in the transaction currency.
func (s *Split) Scrub(account Account, currency Commodity) {
	if !account.Commodity.Equal(currency) {
		return
	}
	places := account.Commodity.Places
	if currency.Places < places {
		places = currency.Places
	}
	value := s.Value.Round(places)
	if s.Amount.Equal(value) {
		return
	}
	s.Amount = value
}

// Imbalance is the sum of split values; zero for a balanced transaction.
func (t Transaction) Imbalance() decimal.Decimal {
	total := decimal.Zero
	for _, s := range t.Splits {
		total = total.Add(s.Value)
	}
	return total
}

func (t Transaction) Validate() error {
	if err := t.PostDate.Validate(); err != nil {
		return err
	}
	if len(t.Splits) == 0 {
		return ErrNoSplits
	}
	for i, s := range t.Splits {
		if strings.TrimSpace(s.AccountID) == "" {
			return fmt.Errorf("split %d: %w", i, ErrEmptyAccount)
		}
	}
	return nil
}

func (tt TemplateTransaction) Validate() error {
	if len(tt.Splits) == 0 {
		return ErrNoSplits
	}
	if len(tt.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	for i, s := range tt.Splits {
		if strings.TrimSpace(s.AccountID) == "" {
			return fmt.Errorf("template split %d: %w", i, ErrEmptyAccount)
		}
	}
	return nil
}
