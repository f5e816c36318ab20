package router

import (
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// tempIDPrefix marks author ids minted for devices seen only over the
// mesh, before they ever disclose an online identity.
const tempIDPrefix = "mesh-"

// IdentityResolver reconciles physical transport addresses (device ids)
// with logical author ids across the two paths. A device id maps to at
// most one author at a time, and the binding is sticky: once a device
// has been seen under one author, a later message claiming a different
// author does not rebind it. That prevents hijacking a previously-seen
// device's identity by claim alone.
type IdentityResolver struct {
	mu       sync.RWMutex
	byDevice map[string]string
	temp     map[string]bool
}

// NewIdentityResolver creates an empty mapping table.
func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{
		byDevice: make(map[string]string),
		temp:     make(map[string]bool),
	}
}

// ResolveAuthor maps a device id to its logical author. An existing
// mapping always wins over knownAuthorID. An unmapped device binds to
// knownAuthorID when supplied; otherwise a temporary author id is
// minted and flagged for later reconciliation.
func (r *IdentityResolver) ResolveAuthor(deviceID, knownAuthorID string) string {
	if deviceID == "" {
		return knownAuthorID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if author, ok := r.byDevice[deviceID]; ok {
		return author
	}

	author := knownAuthorID
	if author == "" {
		author = tempIDPrefix + strings.Split(uuid.NewString(), "-")[0]
		r.temp[author] = true
		log.Printf("minted temporary identity %s for device %s", author, deviceID)
	}

	r.byDevice[deviceID] = author
	return author
}

// Lookup returns the current author binding for a device, if any.
func (r *IdentityResolver) Lookup(deviceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	author, ok := r.byDevice[deviceID]
	return author, ok
}

// IsTemporary reports whether an author id is a minted placeholder.
func (r *IdentityResolver) IsTemporary(authorID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.temp[authorID]
}

// MergeIdentities rewrites every device binding that points at a
// temporary author to the disclosed real author, and un-flags the
// temporary id. The rewrite happens under one lock: no reader observes
// a half-migrated table. Returns the number of rebound devices.
func (r *IdentityResolver) MergeIdentities(tempAuthorID, realAuthorID string) int {
	if tempAuthorID == "" || realAuthorID == "" || tempAuthorID == realAuthorID {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var rebound int
	for device, author := range r.byDevice {
		if author == tempAuthorID {
			r.byDevice[device] = realAuthorID
			rebound++
		}
	}

	delete(r.temp, tempAuthorID)
	if rebound > 0 {
		log.Printf("merged identity %s into %s (%d devices)", tempAuthorID, realAuthorID, rebound)
	}

	return rebound
}

// Snapshot returns an immutable copy of the device mapping table.
func (r *IdentityResolver) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.byDevice))
	for device, author := range r.byDevice {
		out[device] = author
	}
	return out
}
