package mask

import (
	"context"

	"github.com/rotisserie/eris"
)

// Stub is a Resolver serving canned results per map id. It is used where the
// GDAL toolchain is unavailable and in tests.
type Stub struct {
	Results  map[int64]Result
	Errors   map[int64]error
	ProbeErr error

	calls []int64
}

// Resolve returns the canned result or error for mapID.
func (s *Stub) Resolve(_ context.Context, mapID int64, _ string) (Result, error) {
	s.calls = append(s.calls, mapID)
	if err, ok := s.Errors[mapID]; ok {
		return Result{}, err
	}
	if res, ok := s.Results[mapID]; ok {
		return res, nil
	}
	return Result{}, eris.Errorf("mask: no mask for map %d", mapID)
}

// Probe returns ProbeErr.
func (s *Stub) Probe(context.Context) error { return s.ProbeErr }

// Calls returns the map ids passed to Resolve, in order.
func (s *Stub) Calls() []int64 { return s.calls }
