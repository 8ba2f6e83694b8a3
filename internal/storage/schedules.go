package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sxledger/internal/core"
)

const scheduleColumns = `id, name, enabled, frequency, repeat_interval, start_date, end_date, rrule,
	advance_create_days, advance_remind_days, auto_create, last_occurrence, instance_count,
	occurrence_limit, remaining_occurrences`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*core.Schedule, error) {
	var (
		s                   core.Schedule
		enabled, autoCreate int
		freq                string
		start, end, last    string
	)
	err := row.Scan(&s.ID, &s.Name, &enabled, &freq, &s.Recurrence.Interval, &start, &end, &s.Recurrence.RRule,
		&s.AdvanceCreateDays, &s.AdvanceRemindDays, &autoCreate, &last, &s.InstanceCount,
		&s.OccurrenceLimit, &s.RemainingOccurrences)
	if err != nil {
		return nil, err
	}
	s.Enabled = enabled != 0
	s.AutoCreate = autoCreate != 0
	s.Recurrence.Frequency = core.RepetitionTypes(freq)

	if s.Recurrence.Start, err = core.ParseDate(start); err != nil {
		return nil, fmt.Errorf("schedule %s start: %w", s.ID, err)
	}
	if s.Recurrence.End, err = core.ParseDate(end); err != nil {
		return nil, fmt.Errorf("schedule %s end: %w", s.ID, err)
	}
	if s.LastOccurrence, err = core.ParseDate(last); err != nil {
		return nil, fmt.Errorf("schedule %s last occurrence: %w", s.ID, err)
	}
	return &s, nil
}

// SaveSchedule inserts or replaces a schedule together with its templates
// and postponed instances. A schedule without ID gets a new one.
func (r *SQLiteRepository) SaveSchedule(ctx context.Context, s *core.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(timeLayout)

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (`+scheduleColumns+`, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				enabled = excluded.enabled,
				frequency = excluded.frequency,
				repeat_interval = excluded.repeat_interval,
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				rrule = excluded.rrule,
				advance_create_days = excluded.advance_create_days,
				advance_remind_days = excluded.advance_remind_days,
				auto_create = excluded.auto_create,
				last_occurrence = excluded.last_occurrence,
				instance_count = excluded.instance_count,
				occurrence_limit = excluded.occurrence_limit,
				remaining_occurrences = excluded.remaining_occurrences,
				updated_at = excluded.updated_at`,
			s.ID, s.Name, boolToInt(s.Enabled), string(s.Recurrence.Frequency), s.Recurrence.Interval,
			s.Recurrence.Start.String(), s.Recurrence.End.String(), s.Recurrence.RRule,
			s.AdvanceCreateDays, s.AdvanceRemindDays, boolToInt(s.AutoCreate), s.LastOccurrence.String(),
			s.InstanceCount, s.OccurrenceLimit, s.RemainingOccurrences, now)
		if err != nil {
			return fmt.Errorf("upsert schedule: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM template_transactions WHERE schedule_id = ?`, s.ID); err != nil {
			return fmt.Errorf("clear templates: %w", err)
		}
		for ti, tt := range s.Templates {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO template_transactions (schedule_id, position, description, num, notes)
				VALUES (?, ?, ?, ?, ?)`,
				s.ID, ti, tt.Description, tt.Num, tt.Notes); err != nil {
				return fmt.Errorf("insert template %d: %w", ti, err)
			}
			for si, sp := range tt.Splits {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO template_splits
						(schedule_id, template_position, position, account_id, memo, action, debit_formula, credit_formula)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					s.ID, ti, si, sp.AccountID, sp.Memo, sp.Action, sp.DebitFormula, sp.CreditFormula); err != nil {
					return fmt.Errorf("insert template %d split %d: %w", ti, si, err)
				}
			}
		}

		return replacePostponed(ctx, tx, s)
	})
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", s.ID, err)
	}

	slog.InfoContext(ctx, "Schedule saved",
		"schedule_id", s.ID,
		"schedule", s.Name,
		"templates", len(s.Templates))
	return nil
}

// SaveScheduleState persists only the counters and postponed instances,
// leaving the definition untouched. The write only lands when the stored
// instance count still equals prevCount; otherwise another writer has
// effected the schedule in between and ErrStaleScheduleState is returned.
func (r *SQLiteRepository) SaveScheduleState(ctx context.Context, s *core.Schedule, prevCount int) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE schedules SET
				last_occurrence = ?,
				instance_count = ?,
				remaining_occurrences = ?,
				updated_at = ?
			WHERE id = ? AND instance_count = ?`,
			s.LastOccurrence.String(), s.InstanceCount, s.RemainingOccurrences,
			time.Now().UTC().Format(timeLayout), s.ID, prevCount)
		if err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var stored int
			err := tx.QueryRowContext(ctx, `SELECT instance_count FROM schedules WHERE id = ?`, s.ID).Scan(&stored)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrScheduleNotFound
			}
			if err != nil {
				return fmt.Errorf("read counters: %w", err)
			}
			return fmt.Errorf("%w: stored instance count %d, expected %d", ErrStaleScheduleState, stored, prevCount)
		}
		return replacePostponed(ctx, tx, s)
	})
	if err != nil {
		return fmt.Errorf("save schedule state %s: %w", s.ID, err)
	}

	slog.DebugContext(ctx, "Schedule state saved",
		"schedule_id", s.ID,
		"last_occurrence", s.LastOccurrence.String(),
		"instance_count", s.InstanceCount,
		"remaining", s.RemainingOccurrences,
		"postponed", len(s.Postponed))
	return nil
}

func replacePostponed(ctx context.Context, tx *sql.Tx, s *core.Schedule) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM postponed_instances WHERE schedule_id = ?`, s.ID); err != nil {
		return fmt.Errorf("clear postponed: %w", err)
	}
	for _, c := range s.Postponed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO postponed_instances (schedule_id, occurrence_date, sequence, remaining, limited)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID, c.Date.String(), c.Count, c.Remaining, boolToInt(c.Limited)); err != nil {
			return fmt.Errorf("insert postponed %s: %w", c.Date, err)
		}
	}
	return nil
}

// Schedule loads one schedule with its templates and postponed instances.
func (r *SQLiteRepository) Schedule(ctx context.Context, id string) (*core.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, err)
	}
	if err := r.loadScheduleDetails(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListSchedules returns every schedule ordered by name, optionally only the
// enabled ones.
func (r *SQLiteRepository) ListSchedules(ctx context.Context, enabledOnly bool) ([]*core.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	var out []*core.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	rows.Close()

	for _, s := range out {
		if err := r.loadScheduleDetails(ctx, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepository) loadScheduleDetails(ctx context.Context, s *core.Schedule) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT description, num, notes FROM template_transactions
		WHERE schedule_id = ? ORDER BY position`, s.ID)
	if err != nil {
		return fmt.Errorf("load templates for %s: %w", s.ID, err)
	}
	s.Templates = nil
	for rows.Next() {
		var tt core.TemplateTransaction
		if err := rows.Scan(&tt.Description, &tt.Num, &tt.Notes); err != nil {
			rows.Close()
			return fmt.Errorf("scan template: %w", err)
		}
		s.Templates = append(s.Templates, tt)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `
		SELECT template_position, account_id, memo, action, debit_formula, credit_formula
		FROM template_splits WHERE schedule_id = ? ORDER BY template_position, position`, s.ID)
	if err != nil {
		return fmt.Errorf("load template splits for %s: %w", s.ID, err)
	}
	for rows.Next() {
		var (
			pos int
			sp  core.TemplateSplit
		)
		if err := rows.Scan(&pos, &sp.AccountID, &sp.Memo, &sp.Action, &sp.DebitFormula, &sp.CreditFormula); err != nil {
			rows.Close()
			return fmt.Errorf("scan template split: %w", err)
		}
		if pos < 0 || pos >= len(s.Templates) {
			rows.Close()
			return fmt.Errorf("template split references missing template %d", pos)
		}
		s.Templates[pos].Splits = append(s.Templates[pos].Splits, sp)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `
		SELECT occurrence_date, sequence, remaining, limited FROM postponed_instances
		WHERE schedule_id = ? ORDER BY occurrence_date, sequence`, s.ID)
	if err != nil {
		return fmt.Errorf("load postponed for %s: %w", s.ID, err)
	}
	defer rows.Close()
	s.Postponed = nil
	for rows.Next() {
		var (
			date    string
			c       core.Cursor
			limited int
		)
		if err := rows.Scan(&date, &c.Count, &c.Remaining, &limited); err != nil {
			return fmt.Errorf("scan postponed: %w", err)
		}
		if c.Date, err = core.ParseDate(date); err != nil {
			return err
		}
		c.Limited = limited != 0
		s.Postponed = append(s.Postponed, c)
	}
	return rows.Err()
}

// DeleteSchedule removes a schedule; transactions it created are kept and
// lose their back-reference.
func (r *SQLiteRepository) DeleteSchedule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	slog.InfoContext(ctx, "Schedule deleted", "schedule_id", id)
	return nil
}
