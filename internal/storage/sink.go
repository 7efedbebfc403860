// Package storage defines where crawl results are persisted.
//
// A Sink records sites and the links fetched from them. The memory and
// postgres subpackages implement it; NotifyingSink decorates any Sink with a
// publish-on-save notification.
package storage

import (
	"context"
	"time"
)

// Site is one crawled host.
type Site struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	UseSSL bool   `json:"use_ssl"`
}

// Link is one fetched page of a site. Path excludes the scheme and host.
type Link struct {
	ID        int64     `json:"id,omitempty"`
	SiteID    int64     `json:"site_id"`
	Path      string    `json:"link"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Sink persists crawl results. SaveSite is an upsert keyed by domain and
// returns the site id.
type Sink interface {
	SaveSite(ctx context.Context, site Site) (int64, error)
	SaveLink(ctx context.Context, siteID int64, link Link) (int64, error)
	Close()
}

// Publisher delivers a payload to a topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
