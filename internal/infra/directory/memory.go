package directory

import (
	"context"
	"sync"

	chatapp "marketchat/internal/app/chat"
	"marketchat/internal/domain/catalog"
	"marketchat/internal/domain/chat"
)

// MemoryDirectory stands in for the identity collaborator: it answers
// participant existence and contact lookups from seeded fixtures. Tests
// and single-node dev runs use it; production points the same ports at
// the identity service.
type MemoryDirectory struct {
	mu       sync.RWMutex
	known    map[string]struct{}
	contacts map[string]chatapp.Contact
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		known:    make(map[string]struct{}),
		contacts: make(map[string]chatapp.Contact),
	}
}

var (
	_ chat.ParticipantDirectory = (*MemoryDirectory)(nil)
	_ chatapp.ContactDirectory  = (*MemoryDirectory)(nil)
)

// Add registers an actor, optionally with out-of-band contacts.
func (d *MemoryDirectory) Add(actor chat.Actor, contact chatapp.Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.known[actor.ChannelKey()] = struct{}{}
	if contact != (chatapp.Contact{}) {
		d.contacts[actor.ChannelKey()] = contact
	}
}

func (d *MemoryDirectory) Exists(ctx context.Context, actor chat.Actor) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.known[actor.ChannelKey()]
	return ok, nil
}

func (d *MemoryDirectory) Contact(ctx context.Context, actor chat.Actor) (chatapp.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.contacts[actor.ChannelKey()], nil
}

// MemoryCatalog serves listing summaries from fixtures. A missing listing
// yields (nil, nil), matching the catalog collaborator contract.
type MemoryCatalog struct {
	mu       sync.RWMutex
	listings map[string]catalog.Summary
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{listings: make(map[string]catalog.Summary)}
}

var _ catalog.Directory = (*MemoryCatalog)(nil)

func (c *MemoryCatalog) Put(summary catalog.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[summary.ListingID] = summary
}

func (c *MemoryCatalog) Summary(ctx context.Context, listingID string) (*catalog.Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	summary, ok := c.listings[listingID]
	if !ok {
		return nil, nil
	}
	cp := summary
	return &cp, nil
}
