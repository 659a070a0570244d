// Package events distributes committed config changes to in-process
// subscribers and bridges them to other instances and external sinks.
package events

import (
	"context"
	"time"

	"confhub/internal/types"
)

// ConfigChanged is published after a config mutation commits
type ConfigChanged struct {
	ProjectID   string        `json:"project_id"`
	ConfigID    string        `json:"config_id"`
	Name        string        `json:"name"`
	Version     int64         `json:"version"`
	Config      *types.Config `json:"config"`
	AuthorEmail string        `json:"author_email"`
	Operation   string        `json:"operation"`
	At          time.Time     `json:"at"`

	// Origin is empty for changes committed by this instance and holds
	// the publishing instance ID for changes received from a bridge.
	Origin string `json:"origin,omitempty"`
}

// IsLocal reports whether the change was committed by this instance
func (e ConfigChanged) IsLocal() bool {
	return e.Origin == ""
}

// Bus is the publish/subscribe registry for change events
type Bus interface {
	// Publish delivers the event to every subscriber without blocking
	Publish(ctx context.Context, event ConfigChanged) error

	// Subscribe registers a subscriber with a buffered channel
	Subscribe(buffer int) *Subscription
}
