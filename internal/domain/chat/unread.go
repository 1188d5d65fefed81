package chat

// UnreadFilter expresses which messages count as unread for a viewer, so
// every storage backend applies one rule. Exactly one of the two fields is
// set: either count unread messages whose sender kind is in SenderKinds, or
// count unread messages not sent by ExcludeSenderID (seller-to-seller
// threads, where both parties share the seller kind).
type UnreadFilter struct {
	SenderKinds     []ActorKind
	ExcludeSenderID string
}

// UnreadFilterFor returns the counting rule for a viewer's role relative to
// the conversation. ok is false when the viewer is not a participant.
func UnreadFilterFor(viewer Actor, conv *Conversation) (UnreadFilter, bool) {
	if !conv.HasParticipant(viewer) {
		return UnreadFilter{}, false
	}
	switch viewer.Kind {
	case KindBuyer:
		return UnreadFilter{SenderKinds: []ActorKind{KindSeller, KindStaff}}, true
	case KindSeller:
		if conv.IsSellerToSeller() {
			return UnreadFilter{ExcludeSenderID: viewer.ID}, true
		}
		return UnreadFilter{SenderKinds: []ActorKind{KindBuyer, KindStaff}}, true
	case KindStaff:
		return UnreadFilter{SenderKinds: []ActorKind{KindSeller, KindBuyer}}, true
	}
	return UnreadFilter{}, false
}

// Matches reports whether the message counts as unread under the filter.
func (f UnreadFilter) Matches(m *Message) bool {
	if !m.IsUnread() {
		return false
	}
	if f.ExcludeSenderID != "" {
		return m.Sender.ID != f.ExcludeSenderID
	}
	for _, k := range f.SenderKinds {
		if m.Sender.Kind == k {
			return true
		}
	}
	return false
}
