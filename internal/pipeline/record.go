// Package pipeline runs the two stages of a harvest: fetching the catalog
// into intermediate files, and transforming those files into output
// envelopes.
package pipeline

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/mapwarper-cli/internal/mask"
	"github.com/sells-group/mapwarper-cli/internal/model"
	"github.com/sells-group/mapwarper-cli/internal/validate"
)

// State is the position of a record in the transform.
type State int

const (
	StateFetched State = iota
	StateFiltered
	StateMaskResolved
	StateMaskSkipped
	StateValidated
	StateLogged
	StateEmitted
)

var stateNames = [...]string{
	StateFetched:      "fetched",
	StateFiltered:     "filtered",
	StateMaskResolved: "mask_resolved",
	StateMaskSkipped:  "mask_skipped",
	StateValidated:    "validated",
	StateLogged:       "logged",
	StateEmitted:      "emitted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFiltered || s == StateLogged || s == StateEmitted
}

// Record is a map moving through the transform. Transitions return a new
// Record and leave the receiver untouched.
type Record struct {
	state    State
	m        model.MapRecord
	geometry geom.T
	gcps     []model.GCP
	maskErr  string
	diags    []model.Diagnostic
	output   []model.Envelope
}

// Fetched starts a record.
func Fetched(m model.MapRecord) Record {
	return Record{state: StateFetched, m: m}
}

func (r Record) State() State { return r.state }
func (r Record) Map() model.MapRecord { return r.m }
func (r Record) Geometry() geom.T { return r.geometry }
func (r Record) GCPs() []model.GCP { return r.gcps }
func (r Record) MaskErr() string { return r.maskErr }
func (r Record) Diagnostics() []model.Diagnostic { return r.diags }
func (r Record) Output() []model.Envelope { return r.output }

// Subject is the validator's view of the record.
func (r Record) Subject() validate.Subject {
	return validate.Subject{Map: r.m, Geometry: r.geometry, MaskErr: r.maskErr}
}

func (r Record) transition(from []State, to State) (Record, error) {
	for _, s := range from {
		if r.state == s {
			r.state = to
			return r, nil
		}
	}
	return r, eris.Errorf("pipeline: map %d cannot move from %s to %s", r.m.ID, r.state, to)
}

// Filter drops a fetched record that is not admitted.
func (r Record) Filter() (Record, error) {
	return r.transition([]State{StateFetched}, StateFiltered)
}

// WithMask attaches a resolved mask.
func (r Record) WithMask(res mask.Result) (Record, error) {
	next, err := r.transition([]State{StateFetched}, StateMaskResolved)
	if err != nil {
		return r, err
	}
	next.geometry = res.Geometry
	next.gcps = res.GCPs
	return next, nil
}

// WithMaskError records a failed mask resolution. The record goes on to
// validation, where the message becomes a diagnostic.
func (r Record) WithMaskError(err error) (Record, error) {
	next, terr := r.transition([]State{StateFetched}, StateMaskResolved)
	if terr != nil {
		return r, terr
	}
	next.maskErr = err.Error()
	return next, nil
}

// SkipMask moves a record with no mask to resolve past resolution.
func (r Record) SkipMask() (Record, error) {
	return r.transition([]State{StateFetched}, StateMaskSkipped)
}

// Validated attaches the validator's findings.
func (r Record) Validated(diags []model.Diagnostic) (Record, error) {
	next, err := r.transition([]State{StateMaskResolved, StateMaskSkipped}, StateValidated)
	if err != nil {
		return r, err
	}
	next.diags = diags
	return next, nil
}

// Logged finishes a record with its log envelope.
func (r Record) Logged(env model.Envelope) (Record, error) {
	next, err := r.transition([]State{StateValidated}, StateLogged)
	if err != nil {
		return r, err
	}
	next.output = []model.Envelope{env}
	return next, nil
}

// Emitted finishes a record with its object and relations.
func (r Record) Emitted(envs []model.Envelope) (Record, error) {
	next, err := r.transition([]State{StateValidated}, StateEmitted)
	if err != nil {
		return r, err
	}
	next.output = envs
	return next, nil
}
