// Package memory contains an in-memory Sink for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/spider/internal/storage"
)

// ErrUnknownSite is returned when a link references a site that was never saved.
var ErrUnknownSite = errors.New("site not found")

// Sink keeps sites and links in maps.
type Sink struct {
	mu       sync.RWMutex
	sites    map[int64]storage.Site
	byDomain map[string]int64
	links    map[int64][]storage.Link
	lastSite int64
	lastLink int64
}

// NewSink constructs an empty Sink.
func NewSink() *Sink {
	return &Sink{
		sites:    make(map[int64]storage.Site),
		byDomain: make(map[string]int64),
		links:    make(map[int64][]storage.Link),
	}
}

// SaveSite inserts the site or updates the one with the same domain.
func (s *Sink) SaveSite(_ context.Context, site storage.Site) (int64, error) {
	if site.Domain == "" {
		return 0, errors.New("site domain is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byDomain[site.Domain]
	if !ok {
		s.lastSite++
		id = s.lastSite
		s.byDomain[site.Domain] = id
	}
	site.ID = id
	s.sites[id] = site
	return id, nil
}

// SaveLink appends a link to a saved site.
func (s *Sink) SaveLink(_ context.Context, siteID int64, link storage.Link) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[siteID]; !ok {
		return 0, ErrUnknownSite
	}
	s.lastLink++
	link.ID = s.lastLink
	link.SiteID = siteID
	s.links[siteID] = append(s.links[siteID], link)
	return link.ID, nil
}

// Sites returns every saved site ordered by id.
func (s *Sink) Sites() []storage.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Links returns a copy of the links saved for siteID.
func (s *Sink) Links(siteID int64) []storage.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.Link(nil), s.links[siteID]...)
}

// Close is a no-op.
func (s *Sink) Close() {}

var _ storage.Sink = (*Sink)(nil)
