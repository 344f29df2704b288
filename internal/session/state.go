package session

import (
	"github.com/Atulx21/SevaConnect/internal/domain"
)

// Phase summarizes State for the presentation layer.
type Phase string

const (
	PhaseUnresolved Phase = "unresolved"
	PhaseAnonymous  Phase = "anonymous"
	PhaseOnboarding Phase = "onboarding"
	PhaseActive     Phase = "active"
)

var phases = []Phase{PhaseUnresolved, PhaseAnonymous, PhaseOnboarding, PhaseActive}

// State is a snapshot of who is signed in and their profile. Profile is
// non-nil only when User is non-nil, and Loading is false only once
// Initialized is true.
type State struct {
	User        *domain.User
	Session     *domain.Session
	Profile     *domain.Profile
	Loading     bool
	Initialized bool
	Err         error
}

// Phase derives the state machine position.
func (s State) Phase() Phase {
	switch {
	case !s.Initialized:
		return PhaseUnresolved
	case s.User == nil:
		return PhaseAnonymous
	case s.Profile == nil:
		return PhaseOnboarding
	default:
		return PhaseActive
	}
}

// clone copies the pointed-to records so callers cannot alias manager state.
func (s State) clone() State {
	c := s
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	if s.Session != nil {
		sess := *s.Session
		c.Session = &sess
	}
	if s.Profile != nil {
		p := *s.Profile
		c.Profile = &p
	}
	return c
}
