package sculpt

import (
	"sync"
)

// platformEntry is one registered platform with the capability preferences
// it declared at registration and its registration sequence number. The
// sequence number never changes, re-registration included, so arbitration
// ties keep resolving to the platform that registered first.
type platformEntry struct {
	platform Platform
	prefs    map[Capability]Preference
	seq      uint64
}

// capabilityRegistry arbitrates capabilities across registered platforms.
// Each capability resolves to the eligible platform with the strongest
// preference; among equals the earliest registration wins. Platforms that
// declared PreferenceNone for a capability are ineligible for it.
//
// Concurrency:
// The resolution table is rebuilt under the write lock on every
// registration change and read under the read lock, so Resolve never
// observes a half-updated table.
type capabilityRegistry struct {
	mu      sync.RWMutex
	nextSeq uint64
	entries []*platformEntry
	table   [capabilityCount]Platform
}

// register adds or updates p and returns the capability hand-overs the
// change caused.
func (r *capabilityRegistry) register(p Platform) []EventCapabilityChanged {
	prefs := snapshotPrefs(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e := r.entryLocked(p); e != nil {
		e.prefs = prefs
	} else {
		r.entries = append(r.entries, &platformEntry{
			platform: p,
			prefs:    prefs,
			seq:      r.nextSeq,
		})
		r.nextSeq++
	}
	return r.rebuildLocked()
}

// unregister removes p and returns whether it was registered plus the
// capability hand-overs the removal caused.
func (r *capabilityRegistry) unregister(p Platform) (bool, []EventCapabilityChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.platform == p {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true, r.rebuildLocked()
		}
	}
	return false, nil
}

// resolve returns the platform currently holding the capability.
func (r *capabilityRegistry) resolve(c Capability) (Platform, error) {
	if c < 0 || c >= capabilityCount {
		return nil, ErrNoProvider
	}
	r.mu.RLock()
	p := r.table[c]
	r.mu.RUnlock()
	if p == nil {
		return nil, ErrNoProvider
	}
	return p, nil
}

// holder returns the platform currently holding the capability, or nil.
func (r *capabilityRegistry) holder(c Capability) Platform {
	p, err := r.resolve(c)
	if err != nil {
		return nil
	}
	return p
}

// platforms returns the registered platforms in registration order.
func (r *capabilityRegistry) platforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.platform
	}
	return out
}

// find returns the registered platform with the derived id. When ids
// collide the latest registration wins.
func (r *capabilityRegistry) find(id string) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found Platform
	for _, e := range r.entries {
		if PlatformID(e.platform) == id {
			found = e.platform
		}
	}
	return found, found != nil
}

// contains reports whether p is registered.
func (r *capabilityRegistry) contains(p Platform) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entryLocked(p) != nil
}

// len returns the number of registered platforms.
func (r *capabilityRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *capabilityRegistry) entryLocked(p Platform) *platformEntry {
	for _, e := range r.entries {
		if e.platform == p {
			return e
		}
	}
	return nil
}

// rebuildLocked recomputes the resolution table and returns one change per
// capability whose holder moved. Ties on preference resolve to the lowest
// registration sequence, so the platform that registered first keeps the
// capability.
func (r *capabilityRegistry) rebuildLocked() []EventCapabilityChanged {
	var table [capabilityCount]Platform
	for c := Capability(0); c < capabilityCount; c++ {
		var bestPref Preference
		var bestSeq uint64
		for _, e := range r.entries {
			pref := e.prefs[c]
			if pref == PreferenceNone {
				continue
			}
			if table[c] == nil || pref > bestPref || (pref == bestPref && e.seq < bestSeq) {
				table[c] = e.platform
				bestPref = pref
				bestSeq = e.seq
			}
		}
	}

	var changes []EventCapabilityChanged
	for c := Capability(0); c < capabilityCount; c++ {
		if table[c] != r.table[c] {
			changes = append(changes, EventCapabilityChanged{
				Capability: c,
				Previous:   r.table[c],
				Current:    table[c],
			})
		}
	}
	r.table = table
	return changes
}

// snapshotPrefs copies the platform's declared preferences. Capabilities the
// platform omits default to PreferenceNone.
func snapshotPrefs(p Platform) map[Capability]Preference {
	declared := p.Capabilities()
	prefs := make(map[Capability]Preference, len(declared))
	for c, pref := range declared {
		if c < 0 || c >= capabilityCount {
			continue
		}
		prefs[c] = pref
	}
	return prefs
}
