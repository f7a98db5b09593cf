package catalog

import (
	"context"
	"slices"
	"strings"
)

// Class labels the kind of content a destination holds.
type Class string

const (
	ClassVideo   Class = "video"
	ClassAudio   Class = "audio"
	ClassUnknown Class = "unknown"
)

// Destination is one catalog location imported downloads can land in.
type Destination struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Class Class    `json:"class"`
	Paths []string `json:"paths"`
}

// PrimaryPath returns the first backing directory, or "" when the
// destination has none.
func (d Destination) PrimaryPath() string {
	if len(d.Paths) == 0 {
		return ""
	}
	return d.Paths[0]
}

// Catalog enumerates import destinations and triggers rescans after imports
// land. Implementations must be safe for concurrent use.
type Catalog interface {
	EnumerateDestinations() []Destination
	ResolveDestination(id string) (Destination, bool)
	TriggerRescan(ctx context.Context, dest Destination) error
}

// SelectByClass returns the first destination whose class matches, scanning
// in enumeration order.
func SelectByClass(destinations []Destination, class Class) (Destination, bool) {
	for _, dest := range destinations {
		if dest.Class == class {
			return dest, true
		}
	}
	return Destination{}, false
}

func cloneDestination(dest Destination) Destination {
	dest.Paths = slices.Clone(dest.Paths)
	return dest
}

func matchesDestination(dest Destination, id string) bool {
	return strings.EqualFold(dest.ID, id) || strings.EqualFold(dest.Name, id)
}
