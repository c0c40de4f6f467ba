package service

import (
	"context"

	"kairos/internal/audit"
)

// AuditFeed merges the audit logs of the caller's capsules.
func (s *Service) AuditFeed(ctx context.Context, q audit.FeedQuery) ([]audit.FeedItem, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	capsules, err := s.capsules.ListByOwner(ctx, actor)
	if err != nil {
		return nil, translate(err, "failed to load audit feed")
	}
	return audit.Feed(capsules, q), nil
}

// AuditStats summarises the caller's audit history.
func (s *Service) AuditStats(ctx context.Context) (audit.Stats, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return audit.Stats{}, err
	}
	capsules, err := s.capsules.ListByOwner(ctx, actor)
	if err != nil {
		return audit.Stats{}, translate(err, "failed to load audit stats")
	}
	return audit.ComputeStats(capsules), nil
}
