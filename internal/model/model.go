package model

import (
	"errors"
	"fmt"
	"strings"
)

type State int

const (
	StateUnknown State = iota
	StateOff
	StateOn
)

var ErrInvalidState = errors.New("invalid sensor state")

func (s State) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseState normalizes the accepted sensor vocabulary into a State.
// Unrecognized input yields StateUnknown and ErrInvalidState.
func ParseState(v any) (State, error) {
	switch val := v.(type) {
	case nil:
		return StateUnknown, nil
	case bool:
		if val {
			return StateOn, nil
		}
		return StateOff, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "on":
			return StateOn, nil
		case "false", "off":
			return StateOff, nil
		}
	}
	return StateUnknown, fmt.Errorf("%w: %v", ErrInvalidState, v)
}

type Sensor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	State State  `json:"state"`
}

// Set leaves the current state untouched when v is not a recognized token.
func (s *Sensor) Set(v any) error {
	state, err := ParseState(v)
	if err != nil {
		return err
	}
	s.State = state
	return nil
}

func (s Sensor) String() string {
	return fmt.Sprintf("{id:%s, name:%s, label:%s, state:%s}", s.ID, s.Name, s.Label, s.State)
}

type SensorDef struct {
	ID    string
	Name  string
	Label string
}

type Registry struct {
	order   []string
	sensors map[string]*Sensor
}

func NewRegistry(defs []SensorDef) *Registry {
	r := &Registry{
		order:   make([]string, 0, len(defs)),
		sensors: make(map[string]*Sensor, len(defs)),
	}
	for _, d := range defs {
		r.order = append(r.order, d.ID)
		r.sensors[d.ID] = &Sensor{ID: d.ID, Name: d.Name, Label: d.Label}
	}
	return r
}

func (r *Registry) Has(id string) bool {
	_, ok := r.sensors[id]
	return ok
}

func (r *Registry) Get(id string) (Sensor, bool) {
	s, ok := r.sensors[id]
	if !ok {
		return Sensor{}, false
	}
	return *s, true
}

func (r *Registry) Set(id string, v any) error {
	s, ok := r.sensors[id]
	if !ok {
		return fmt.Errorf("unknown sensor %q", id)
	}
	return s.Set(v)
}

// Snapshot returns value copies in registry order.
func (r *Registry) Snapshot() []Sensor {
	out := make([]Sensor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.sensors[id])
	}
	return out
}
