// Package membership defines the ordered lattice of audience access keys
// and the organization tiers built on top of it.
package membership

import (
	"fmt"
	"sort"
)

// PublicKeyID is the key every configuration must contain at order 0. It
// is synthesized when absent so anonymous audiences always have a tier.
const PublicKeyID = "public"

// PlatformKeyID is the conventional key for authenticated platform users.
const PlatformKeyID = "platform"

// Key is one named access tier. Order forms a total lattice: a holder of a
// key sees content at its order and below.
type Key struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Order int    `json:"order" yaml:"order"`
}

// Keys is the full ordered lattice loaded from configuration.
type Keys struct {
	byID    map[string]Key
	ordered []Key
}

// NewKeys builds a lattice from configured keys, sorted by order. A public
// key at order 0 is synthesized if the configuration lacks one.
func NewKeys(configured []Key) *Keys {
	byID := make(map[string]Key, len(configured)+1)
	for _, k := range configured {
		byID[k.ID] = k
	}
	if _, ok := byID[PublicKeyID]; !ok {
		byID[PublicKeyID] = Key{ID: PublicKeyID, Name: "Public", Order: 0}
	}
	ordered := make([]Key, 0, len(byID))
	for _, k := range byID {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].ID < ordered[j].ID
	})
	return &Keys{byID: byID, ordered: ordered}
}

// Get returns the key with the given id.
func (ks *Keys) Get(id string) (Key, bool) {
	k, ok := ks.byID[id]
	return k, ok
}

// All returns every key in ascending order.
func (ks *Keys) All() []Key {
	out := make([]Key, len(ks.ordered))
	copy(out, ks.ordered)
	return out
}

// Granted returns the ids of every key a holder of tierKey can use: all
// keys with order at or below the tier's order.
func (ks *Keys) Granted(tierKey string) ([]string, error) {
	tier, ok := ks.byID[tierKey]
	if !ok {
		return nil, fmt.Errorf("unknown membership key %q", tierKey)
	}
	var out []string
	for _, k := range ks.ordered {
		if k.Order <= tier.Order {
			out = append(out, k.ID)
		}
	}
	return out, nil
}

// Admits reports whether a holder of tierKey sees content gated at
// contentKey, i.e. order(tierKey) >= order(contentKey). Unknown keys admit
// nothing.
func (ks *Keys) Admits(tierKey, contentKey string) bool {
	tier, ok := ks.byID[tierKey]
	if !ok {
		return false
	}
	content, ok := ks.byID[contentKey]
	if !ok {
		return false
	}
	return tier.Order >= content.Order
}
