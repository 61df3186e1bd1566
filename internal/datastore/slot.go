// Package datastore holds the last-good snapshot of each upstream dataset. A
// fetch either replaces a snapshot wholesale or leaves it untouched; readers never
// see a partially updated dataset.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lox/firerisk/internal/metrics"
	"github.com/lox/firerisk/internal/upstream"
)

// ErrDiscarded is returned when the caller's context ended before the response
// arrived. The result is dropped so an unmounted view never commits data.
var ErrDiscarded = errors.New("fetch result discarded")

// ErrSuperseded is returned when a fetch that started later has already been
// committed. The older result is dropped and the caller must not treat it as
// current data.
var ErrSuperseded = errors.New("fetch result superseded")

// status is the fetch bookkeeping shared by both stores.
type status struct {
	Loaded      bool      // at least one fetch succeeded
	Fetching    bool      // a fetch is in flight
	Failed      bool      // the most recent completed fetch failed
	Err         error     // error of the most recent completed fetch
	LastAttempt time.Time // when the most recent completed fetch finished
}

// slot is a single atomically replaced value plus fetch status. Fetches are
// sequenced by start order: a fetch that started earlier never overwrites one
// that started later.
type slot[T any] struct {
	name string
	data atomic.Pointer[T]

	mu        sync.Mutex
	started   uint64
	committed uint64
	inFlight  int
	st        status
}

func (s *slot[T]) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	s.inFlight++
	return s.started
}

// finish records the outcome of fetch seq. It commits v on success and returns
// the error the caller should see.
func (s *slot[T]) finish(ctx context.Context, seq uint64, v *T, fetchErr error, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.StoreFetchesTotal.WithLabelValues(s.name, "discarded").Inc()
		return fmt.Errorf("%s: %w: %w", s.name, ErrDiscarded, ctxErr)
	}

	if fetchErr != nil {
		if !errors.Is(fetchErr, upstream.ErrTransport) {
			fetchErr = fmt.Errorf("%w: %w", upstream.ErrTransport, fetchErr)
		}
		fetchErr = fmt.Errorf("fetch %s: %w", s.name, fetchErr)
		metrics.StoreFetchesTotal.WithLabelValues(s.name, "failure").Inc()
		if seq >= s.committed {
			s.st.Failed = true
			s.st.Err = fetchErr
			s.st.LastAttempt = now
		}
		return fetchErr
	}

	if seq < s.committed {
		metrics.StoreFetchesTotal.WithLabelValues(s.name, "superseded").Inc()
		return fmt.Errorf("%s: %w", s.name, ErrSuperseded)
	}
	metrics.StoreFetchesTotal.WithLabelValues(s.name, "success").Inc()
	s.committed = seq
	s.data.Store(v)
	s.st = status{Loaded: true, LastAttempt: now}
	metrics.StoreLastSuccess.WithLabelValues(s.name).Set(float64(now.Unix()))
	return nil
}

func (s *slot[T]) load() *T {
	return s.data.Load()
}

func (s *slot[T]) state() status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st
	st.Fetching = s.inFlight > 0
	return st
}
