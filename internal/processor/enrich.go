// SPDX-License-Identifier: MIT

package processor

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/state"
)

// driverCache is the slice of the backplane the enricher reads.
type driverCache interface {
	DriverByCar(ctx context.Context, eventID, carNumber string) (bus.DriverInfo, bool, error)
	DriverByTransponder(ctx context.Context, transponderID uint32) (bus.DriverInfo, bool, error)
}

// enricher resolves driver identity onto car state. Idempotent: applying the
// same driver info twice yields no patch.
type enricher struct {
	logger  zerolog.Logger
	eventID string
	cache   driverCache
}

// emptyStr is the explicit "no driver" clear.
func emptyStr() *string {
	s := ""
	return &s
}

// ApplyDriverInfo resolves one driver-info message onto the state and
// returns the car patch, or nil when nothing changed. Resolution order:
// car number, then transponder, then drop. Caller holds the write lock.
func (e *enricher) ApplyDriverInfo(st *state.SessionState, info bus.DriverInfo) *state.CarPositionPatch {
	var car *state.CarPosition
	switch {
	case info.CarNumber != "":
		car = st.Car(info.CarNumber)
		if car != nil {
			metrics.DriversEnrichedTotal.WithLabelValues("car").Inc()
		}
	case info.TransponderID > 0:
		car = st.CarByTransponder(info.TransponderID)
		if car != nil {
			metrics.DriversEnrichedTotal.WithLabelValues("transponder").Inc()
		}
	}
	if car == nil {
		// The car may simply not have appeared yet; the next sweep or the
		// next driver-info arrival resolves it.
		e.logger.Debug().Str("car", info.CarNumber).
			Uint32("transponder", info.TransponderID).Msg("driver info without matching car")
		return nil
	}

	if car.DriverID == info.DriverID && car.DriverName == info.DriverName {
		return nil
	}
	car.DriverID = info.DriverID
	car.DriverName = info.DriverName
	return &state.CarPositionPatch{
		Number:     car.Number,
		DriverID:   &info.DriverID,
		DriverName: &info.DriverName,
	}
}

// Sweep checks every car with an assigned driver against the cache and
// clears assignments whose cache entries are gone. Cache reads happen
// outside the state lock; the caller applies the returned clears under it.
func (e *enricher) Sweep(ctx context.Context, cars []state.CarPosition) []state.CarPositionPatch {
	var patches []state.CarPositionPatch
	for _, car := range cars {
		if car.DriverID == "" && car.DriverName == "" {
			continue
		}
		if _, ok, err := e.cache.DriverByCar(ctx, e.eventID, car.Number); err != nil || ok {
			continue
		}
		if car.TransponderID > 0 {
			if _, ok, err := e.cache.DriverByTransponder(ctx, car.TransponderID); err != nil || ok {
				continue
			}
		}
		metrics.DriversEnrichedTotal.WithLabelValues("cleared").Inc()
		patches = append(patches, state.CarPositionPatch{
			Number:     car.Number,
			DriverID:   emptyStr(),
			DriverName: emptyStr(),
		})
	}
	return patches
}

// sweepInterval jitters the base cadence ±5% so a fleet of processors does
// not hit the cache in lockstep.
func sweepInterval(base time.Duration) time.Duration {
	jitter := time.Duration(rand.Int63n(int64(base) / 10))
	return base - base/20 + jitter
}
