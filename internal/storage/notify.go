package storage

import (
	"context"

	"go.uber.org/zap"
)

// LinkEvent is published after a link is saved.
type LinkEvent struct {
	SiteID int64  `json:"site_id"`
	LinkID int64  `json:"link_id"`
	Path   string `json:"link"`
	Size   int64  `json:"size"`
}

// NotifyingSink publishes a LinkEvent for every saved link. Publish failures
// are logged and do not fail the save.
type NotifyingSink struct {
	Sink
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewNotifyingSink wraps next.
func NewNotifyingSink(next Sink, publisher Publisher, topic string, logger *zap.Logger) *NotifyingSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyingSink{Sink: next, publisher: publisher, topic: topic, logger: logger}
}

// SaveLink saves through the wrapped sink, then publishes.
func (s *NotifyingSink) SaveLink(ctx context.Context, siteID int64, link Link) (int64, error) {
	id, err := s.Sink.SaveLink(ctx, siteID, link)
	if err != nil {
		return 0, err
	}
	event := LinkEvent{SiteID: siteID, LinkID: id, Path: link.Path, Size: link.Size}
	msgID, err := s.publisher.Publish(ctx, s.topic, event)
	if err != nil {
		s.logger.Warn("link notification failed",
			zap.Int64("link_id", id),
			zap.String("topic", s.topic),
			zap.Error(err))
		return id, nil
	}
	s.logger.Debug("link notification published", zap.Int64("link_id", id), zap.String("message_id", msgID))
	return id, nil
}
