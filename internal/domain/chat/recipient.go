package chat

// ResolveRecipient computes the single counterparty for a message. It is
// pure and deterministic: delivery scheduling and notification decisions
// both call it, so they can never disagree on who the recipient is.
//
// Rules, in order:
//  1. Seller-to-seller thread: the recipient is whichever seller is not the
//     sender, compared by raw id since both share the seller kind.
//  2. Buyer sender → the seller.
//  3. Seller sender → the buyer, else the inquirer seller.
//  4. Staff sender → the buyer, else the seller, else the inquirer seller.
//  5. Self-send guard: a recipient equal to the sender resolves to none.
func ResolveRecipient(msg *Message, conv *Conversation) (Actor, bool) {
	p := conv.Participants

	var recipient Actor
	switch {
	case conv.IsSellerToSeller():
		switch msg.Sender.ID {
		case p.SellerID:
			recipient = Actor{Kind: KindSeller, ID: p.InquirerSellerID}
		case p.InquirerSellerID:
			recipient = Actor{Kind: KindSeller, ID: p.SellerID}
		default:
			return Actor{}, false
		}
	case msg.Sender.Kind == KindBuyer:
		if p.SellerID == "" {
			return Actor{}, false
		}
		recipient = Actor{Kind: KindSeller, ID: p.SellerID}
	case msg.Sender.Kind == KindSeller:
		switch {
		case p.BuyerID != "":
			recipient = Actor{Kind: KindBuyer, ID: p.BuyerID}
		case p.InquirerSellerID != "":
			recipient = Actor{Kind: KindSeller, ID: p.InquirerSellerID}
		default:
			return Actor{}, false
		}
	case msg.Sender.Kind == KindStaff:
		switch {
		case p.BuyerID != "":
			recipient = Actor{Kind: KindBuyer, ID: p.BuyerID}
		case p.SellerID != "":
			recipient = Actor{Kind: KindSeller, ID: p.SellerID}
		case p.InquirerSellerID != "":
			recipient = Actor{Kind: KindSeller, ID: p.InquirerSellerID}
		default:
			return Actor{}, false
		}
	default:
		return Actor{}, false
	}

	if recipient == msg.Sender {
		return Actor{}, false
	}
	return recipient, true
}
