// Package views derives what each dashboard surface shows from fixed snapshots.
// Every function here is pure: the same input always yields the same output and
// nothing is mutated. User events go back through the dashboard session.
package views

import (
	"time"

	"github.com/lox/firerisk/internal/datastore"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
	"github.com/lox/firerisk/internal/selection"
	"github.com/lox/firerisk/internal/staleness"
)

// Input is everything a view may read.
type Input struct {
	Fire       datastore.FireSnapshot
	Boundaries datastore.BoundarySnapshot
	Selection  selection.State
	Now        time.Time
	Location   *time.Location
	Policy     risk.Policy
}

// LoadState is what a surface should show instead of, or alongside, its data.
type LoadState string

const (
	// Loading means a first fetch is still outstanding.
	Loading LoadState = "loading"
	// Ready means data is available, possibly stale.
	Ready LoadState = "ready"
	// Empty means a first fetch failed and there is nothing to show.
	Empty LoadState = "empty"
)

func storeState(loaded, failed bool) LoadState {
	switch {
	case loaded:
		return Ready
	case failed:
		return Empty
	default:
		return Loading
	}
}

// combine returns the weakest of the states: loading beats empty beats ready.
func combine(states ...LoadState) LoadState {
	out := Ready
	for _, s := range states {
		switch s {
		case Loading:
			return Loading
		case Empty:
			out = Empty
		}
	}
	return out
}

func (in Input) fireState() LoadState {
	return storeState(in.Fire.Loaded, in.Fire.Failed)
}

func (in Input) boundaryState() LoadState {
	return storeState(in.Boundaries.Loaded, in.Boundaries.Failed)
}

func (in Input) band(r models.CountyRiskRecord) risk.Band {
	return risk.ResolveRecord(r, in.Policy)
}

func (in Input) describe(t time.Time) string {
	return staleness.Describe(t, in.Now, in.Location)
}

// JoinMisses lists counties present in only one dataset: records with no
// boundary (in record order) and boundaries with no record (in feature order).
// A miss is data, not an error.
func JoinMisses(fire datastore.FireSnapshot, boundaries datastore.BoundarySnapshot) (missingBoundary, missingRecord []string) {
	for _, r := range fire.Records {
		if !boundaries.Has(r.County) {
			missingBoundary = append(missingBoundary, r.County)
		}
	}
	for _, name := range boundaries.Set.Names() {
		if _, ok := fire.Lookup(name); !ok {
			missingRecord = append(missingRecord, name)
		}
	}
	return missingBoundary, missingRecord
}
