package app

import (
	"github.com/charlesng35/blotter/internal/ratelimit"
	"github.com/charlesng35/blotter/internal/services"
)

// LinkOptions configures link issuing from the guest and server sections.
func (c *Config) LinkOptions(limiter ratelimit.Limiter) []services.LinkOption {
	d := c.Guest.LinkDuration
	return []services.LinkOption{
		services.WithLinkBaseURL(c.Server.BaseURL),
		services.WithLinkDurations(d.Min, d.Max, d.Default),
		services.WithMaxActiveLinks(c.Guest.MaxActiveLinksPerCase),
		services.WithLinkLimiter(limiter),
	}
}

// EvidenceOptions configures evidence ingest limits.
func (c GuestConfig) EvidenceOptions() []services.EvidenceOption {
	opts := []services.EvidenceOption{
		services.WithMaxUploadSize(c.MaxUploadSize),
		services.WithMaxUploadsPerLink(c.MaxUploadsPerLink),
	}
	if len(c.AllowedTypes) > 0 {
		opts = append(opts, services.WithAllowedTypes(c.AllowedTypes))
	}
	return opts
}
