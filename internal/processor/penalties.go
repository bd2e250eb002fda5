// SPDX-License-Identifier: MIT

package processor

import (
	"context"
	"encoding/json"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/state"
)

// pollPenalties diffs the aggregator-owned penalty hash against the last
// observed snapshot and applies changed entries to car state. Returns the
// resulting car patches; caller broadcasts them.
func (p *Processor) pollPenalties(ctx context.Context) ([]state.CarPositionPatch, error) {
	fields, err := p.bus.HGetAll(ctx, bus.ControlLogPenaltiesKey(p.cfg.EventID))
	if err != nil {
		return nil, err
	}

	current := make(map[string]bus.CarPenalty, len(fields))
	for car, raw := range fields {
		var pen bus.CarPenalty
		if err := json.Unmarshal([]byte(raw), &pen); err != nil {
			p.logger.Warn().Err(err).Str("car", car).
				Str("event", "processor.penalty_unmarshal_failed").Msg("skipping malformed penalty entry")
			continue
		}
		current[car] = pen
	}

	var patches []state.CarPositionPatch

	p.mu.Lock()
	for car, pen := range current {
		if prev, ok := p.lastPenalties[car]; ok && prev == pen {
			continue
		}
		pos := p.state.Car(car)
		if pos == nil {
			continue
		}
		pos.PenaltyWarnings = pen.Warnings
		pos.PenaltyLaps = pen.Laps
		w, l := pen.Warnings, pen.Laps
		patches = append(patches, state.CarPositionPatch{
			Number:          car,
			PenaltyWarnings: &w,
			PenaltyLaps:     &l,
		})
	}
	p.mu.Unlock()

	p.lastPenalties = current
	return patches, nil
}
