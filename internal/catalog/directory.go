package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"capstan/internal/config"
	"capstan/internal/services"
)

// HTTPDoer describes the HTTP client used for rescan calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultRescanTimeout = 10 * time.Second

// DirectoryCatalog serves destinations from the configured class directories
// under the library root. The destination set is fixed at construction.
type DirectoryCatalog struct {
	destinations []Destination
	rescanURL    string
	rescanToken  string
	timeout      time.Duration
	client       HTTPDoer
}

// NewDirectoryCatalog builds the catalog from configuration. Classes whose
// directory is unset produce no destination. The rescan endpoint stays
// disabled unless both the toggle and the URL are present.
func NewDirectoryCatalog(cfg *config.Config) *DirectoryCatalog {
	if cfg == nil {
		return &DirectoryCatalog{}
	}

	titler := cases.Title(language.Und)
	entries := []struct {
		id    string
		class Class
		dir   string
	}{
		{"video", ClassVideo, cfg.Catalog.VideoDir},
		{"audio", ClassAudio, cfg.Catalog.AudioDir},
		{"other", ClassUnknown, cfg.Catalog.OtherDir},
	}

	destinations := make([]Destination, 0, len(entries))
	for _, entry := range entries {
		resolved := cfg.ResolveLibraryPath(entry.dir)
		if resolved == "" {
			continue
		}
		destinations = append(destinations, Destination{
			ID:    entry.id,
			Name:  titler.String(entry.id),
			Class: entry.class,
			Paths: []string{resolved},
		})
	}

	c := &DirectoryCatalog{destinations: destinations}
	if cfg.Catalog.RescanEnabled {
		if url := strings.TrimSpace(cfg.Catalog.RescanURL); url != "" {
			c.rescanURL = url
			c.rescanToken = strings.TrimSpace(cfg.Catalog.RescanToken)
			c.timeout = time.Duration(cfg.Catalog.RescanTimeout) * time.Second
			if c.timeout <= 0 {
				c.timeout = defaultRescanTimeout
			}
			c.client = http.DefaultClient
		}
	}
	return c
}

// SetHTTPClient overrides the rescan HTTP client. Intended for tests.
func (c *DirectoryCatalog) SetHTTPClient(client HTTPDoer) {
	if c == nil {
		return
	}
	c.client = client
}

// EnumerateDestinations returns the configured destinations in stable order.
func (c *DirectoryCatalog) EnumerateDestinations() []Destination {
	if c == nil {
		return nil
	}
	out := make([]Destination, 0, len(c.destinations))
	for _, dest := range c.destinations {
		out = append(out, cloneDestination(dest))
	}
	return out
}

// ResolveDestination matches id against destination IDs and names,
// case-insensitively.
func (c *DirectoryCatalog) ResolveDestination(id string) (Destination, bool) {
	if c == nil {
		return Destination{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Destination{}, false
	}
	for _, dest := range c.destinations {
		if matchesDestination(dest, id) {
			return cloneDestination(dest), true
		}
	}
	return Destination{}, false
}

// TriggerRescan POSTs to the configured rescan endpoint. It is a no-op when
// the endpoint is not configured. Failures are returned for the caller to
// log; imports never depend on the rescan landing.
func (c *DirectoryCatalog) TriggerRescan(ctx context.Context, dest Destination) error {
	if c == nil || c.rescanURL == "" || c.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rescanURL, nil)
	if err != nil {
		return services.Wrap(services.ErrTransient, "catalog", "rescan", "build rescan request", err)
	}
	if c.rescanToken != "" {
		req.Header.Set("X-Emby-Token", c.rescanToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "catalog", "rescan", "call rescan endpoint for "+dest.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrTransient, "catalog", "rescan",
			fmt.Sprintf("rescan endpoint returned %d for %s", resp.StatusCode, dest.ID), nil)
	}
	return nil
}
