// Package submission drives one generator view from Idle through Loading to
// Success or Failure.
package submission

import (
	"github.com/tjfontaine/mealgen/internal/envelope"
)

// Phase is the DisplayState discriminator.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseFailure
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// MarshalText lets Phase appear by name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// DisplayState is what a view shows. Exactly one phase holds; Content is set
// only on Success, Message and Kind only on Failure. Values are replaced whole.
type DisplayState struct {
	Phase    Phase             `json:"phase"`
	Sequence uint64            `json:"sequence"`
	Content  *envelope.Payload `json:"content,omitempty"`
	Message  string            `json:"message,omitempty"`
	Kind     envelope.Kind     `json:"kind,omitempty"`
}

func Idle() DisplayState {
	return DisplayState{Phase: PhaseIdle}
}

func Loading(seq uint64) DisplayState {
	return DisplayState{Phase: PhaseLoading, Sequence: seq}
}

func Succeeded(seq uint64, p *envelope.Payload) DisplayState {
	return DisplayState{Phase: PhaseSuccess, Sequence: seq, Content: p}
}

func Failed(seq uint64, err *envelope.Error) DisplayState {
	return DisplayState{Phase: PhaseFailure, Sequence: seq, Message: err.Message, Kind: err.Kind}
}

func (s DisplayState) IsLoading() bool { return s.Phase == PhaseLoading }
