package model

// State is the orchestrator's lifecycle state for one compression request.
type State string

const (
	StateIdle      State = "IDLE"
	StatePlanning  State = "PLANNING"
	StateEncoding  State = "ENCODING"
	StateRetrying  State = "RETRYING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Valid state transitions:
// IDLE -> PLANNING -> ENCODING -> COMPLETED
//            |           |\-> RETRYING -> PLANNING
//            |           |\-> FAILED
//            |            \-> CANCELLED
//             \-> FAILED | CANCELLED
// Terminal states may only restart at PLANNING for a new request.
var stateTransitions = map[State][]State{
	StateIdle:      {StatePlanning},
	StatePlanning:  {StateEncoding, StateFailed, StateCancelled},
	StateEncoding:  {StateCompleted, StateRetrying, StateFailed, StateCancelled},
	StateRetrying:  {StatePlanning, StateCancelled},
	StateCompleted: {StatePlanning},
	StateFailed:    {StatePlanning},
	StateCancelled: {StatePlanning},
}

func (s State) IsValid() bool {
	_, ok := stateTransitions[s]
	return ok
}

// IsTerminal reports whether s ends a compression request.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) String() string {
	return string(s)
}
