// Package changefeed publishes entity change events.
package changefeed

import (
	"errors"
	"fmt"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/registry"
)

var (
	// ErrFeedClosed is returned when publishing to a closed feed.
	ErrFeedClosed = errors.New("change feed is closed")

	// ErrFeedFull is returned when the memory feed buffer is full.
	ErrFeedFull = errors.New("change feed is full")

	// ErrInvalidEvent is returned for nil events or events without a table.
	ErrInvalidEvent = errors.New("invalid change event")
)

// New creates the feed selected by cfg.Type. Type "none" (or empty) returns a
// nil feed: the connection then publishes nothing.
func New(cfg registry.ChangeFeedConfig) (core.ChangeFeed, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryFeed(cfg.BufferSize), nil
	case "kafka":
		f, err := NewKafkaFeed(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported change feed type: %s", cfg.Type)
}

func validate(ev *core.ChangeEvent) error {
	if ev == nil {
		return ErrInvalidEvent
	}
	if ev.Table == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidEvent)
	}
	return nil
}
