package chat

import "errors"

// ActorKind tags the participant variants that may send or receive messages.
type ActorKind string

const (
	KindBuyer  ActorKind = "buyer"
	KindSeller ActorKind = "seller"
	KindStaff  ActorKind = "staff"
)

var ErrInvalidSender = errors.New("chat: sender kind must be buyer, seller or staff")

// Actor identifies a participant as a (kind, id) pair. An inquirer seller is
// a plain seller actor; the conversation records which slot it occupies.
type Actor struct {
	Kind ActorKind
	ID   string
}

func (a Actor) IsZero() bool {
	return a.Kind == "" && a.ID == ""
}

func (a Actor) Valid() bool {
	if a.ID == "" {
		return false
	}
	switch a.Kind {
	case KindBuyer, KindSeller, KindStaff:
		return true
	}
	return false
}

// ChannelKey derives the live-channel subscription key for this actor.
func (a Actor) ChannelKey() string {
	return string(a.Kind) + ":" + a.ID
}
