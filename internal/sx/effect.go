package sx

import (
	"context"

	"sxledger/internal/core"
)

// EffectResult reports what EffectChanges did. Errors never abort the
// batch; they are collected next to the IDs of the transactions that were
// created.
type EffectResult struct {
	Created []string
	// Origin maps each created transaction ID to its schedule ID.
	Origin  map[string]string
	Errors  []error
	// Updated lists the schedules whose counters or postponed list changed
	// and need to be persisted.
	Updated []*core.Schedule
}

// EffectChanges applies the state of every instance: to-create instances
// become ledger transactions, postponed ones are remembered on their
// schedule, and ignored ones are skipped over. Schedule counters advance
// for every instance that was dealt with. With autoCreateOnly, schedules
// not flagged for automatic creation are left alone.
//
// Instances are marked once processed, so calling EffectChanges again
// without further edits does nothing. An instance whose transactions cannot
// be built or committed keeps its state and does not advance the counters.
func (m *Model) EffectChanges(ctx context.Context, autoCreateOnly bool) EffectResult {
	var res EffectResult
	mt := &Materializer{Accounts: m.accounts, Evaluator: m.eval, Now: m.now}

	cancelled := false
	for _, g := range m.groups {
		s := g.Schedule
		changed := false

		for _, inst := range g.List {
			if err := ctx.Err(); err != nil {
				res.Errors = append(res.Errors, err)
				cancelled = true
				break
			}
			if inst.effected && inst.State == inst.OrigState {
				continue
			}
			if autoCreateOnly && !s.AutoCreate {
				if inst.State != ToCreate {
					break
				}
				continue
			}

			switch inst.State {
			case Reminder:
				if inst.OrigState == Postponed {
					m.releasePostponed(s, inst)
					changed = true
				}
			case Created:
				if inst.OrigState == Postponed {
					m.releasePostponed(s, inst)
					changed = true
				}
			case Ignored:
				m.releasePostponed(s, inst)
				advance(s, inst)
				changed = true
			case Postponed:
				if inst.OrigState != Postponed {
					s.AddPostponed(inst.Cursor)
				}
				advance(s, inst)
				changed = true
			case ToCreate:
				ids, ok := m.create(ctx, mt, s, inst, &res)
				if !ok {
					continue
				}
				res.Created = append(res.Created, ids...)
				if res.Origin == nil {
					res.Origin = make(map[string]string, len(ids))
				}
				for _, id := range ids {
					res.Origin[id] = s.ID
				}
				m.releasePostponed(s, inst)
				advance(s, inst)
				inst.State = Created
				changed = true
			}
			inst.OrigState = inst.State
			inst.effected = true
		}

		if changed {
			res.Updated = append(res.Updated, s)
			m.emit(EventUpdated, s.ID)
		}
		if cancelled {
			break
		}
	}

	m.logger.InfoContext(ctx, "Effected scheduled transactions",
		"created", len(res.Created),
		"errors", len(res.Errors),
		"schedules_updated", len(res.Updated))
	return res
}

func (m *Model) create(ctx context.Context, mt *Materializer, s *core.Schedule, inst *Instance, res *EffectResult) ([]string, bool) {
	if m.ledger == nil || m.accounts == nil {
		res.Errors = append(res.Errors, creationError(s, inst, ErrNoLedger))
		return nil, false
	}
	txns, problems, err := mt.Build(ctx, s, inst)
	res.Errors = append(res.Errors, problems...)
	if err != nil {
		m.logger.WarnContext(ctx, "Cancelling scheduled transaction creation",
			"schedule", s.Name,
			"date", inst.Date.String(),
			"error", err)
		res.Errors = append(res.Errors, err)
		return nil, false
	}
	ids, err := m.ledger.CommitTransactions(ctx, txns)
	if err != nil {
		res.Errors = append(res.Errors, creationError(s, inst, err))
		return nil, false
	}
	return ids, true
}

// releasePostponed forgets the snapshot of an instance that was postponed
// before this session and has now been dealt with otherwise.
func (m *Model) releasePostponed(s *core.Schedule, inst *Instance) {
	if inst.OrigState == Postponed && inst.State != Postponed {
		s.RemovePostponed(inst.Cursor)
	}
}

// advance moves the schedule counters past inst. Dates and counts only move
// forward; the remaining count drops once per occurrence.
func advance(s *core.Schedule, inst *Instance) {
	if inst.Date.Compare(s.LastOccurrence) > 0 {
		s.LastOccurrence = inst.Date
	}
	if inst.Cursor.Count > s.InstanceCount {
		s.InstanceCount = inst.Cursor.Count
	}
	if !inst.counted {
		if s.RemainingOccurrences > 0 {
			s.RemainingOccurrences--
		}
		inst.counted = true
	}
}
