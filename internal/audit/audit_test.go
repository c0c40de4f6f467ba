package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kairos/internal/capsule/models"
	id "kairos/pkg/domain"
	"kairos/pkg/platform/circuit"
	"kairos/pkg/requestcontext"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type AuditSuite struct {
	suite.Suite
	logger *slog.Logger
	ctx    context.Context
	now    time.Time
}

func TestAuditSuite(t *testing.T) {
	suite.Run(t, new(AuditSuite))
}

func (s *AuditSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

// =============================================================================
// Recorder
// =============================================================================

func (s *AuditSuite) TestRecordPrependsNewestFirst() {
	r := NewRecorder(s.logger)
	c := &models.Capsule{ID: id.NewCapsuleID(), Owner: "owner"}

	first := r.Record(s.ctx, c, models.ActionCreated, "owner", models.AuditSuccess)
	second := r.Record(requestcontext.WithTime(s.ctx, s.now.Add(time.Hour)), c, models.ActionPing, "owner", models.AuditSuccess)

	s.Require().Len(c.AuditLog, 2)
	s.Equal(second.ID, c.AuditLog[0].ID)
	s.Equal(first.ID, c.AuditLog[1].ID)
	s.Equal(s.now, first.Timestamp)
	s.Equal(models.ActionCreated, c.AuditLog[1].Action)
}

func (s *AuditSuite) TestRecordDoesNotShareBackingArray() {
	r := NewRecorder(s.logger)
	c := &models.Capsule{ID: id.NewCapsuleID()}
	r.Record(s.ctx, c, models.ActionCreated, "owner", models.AuditSuccess)
	snapshot := c.AuditLog

	r.Record(s.ctx, c, models.ActionPing, "owner", models.AuditSuccess)
	s.Len(snapshot, 1)
	s.Equal(models.ActionCreated, snapshot[0].Action)
}

func (s *AuditSuite) TestPublishHandsEventsToDispatcher() {
	sink := &recordingSink{}
	w := NewWorker(sink, s.logger)
	r := NewRecorder(s.logger, WithDispatcher(w))
	c := &models.Capsule{ID: id.NewCapsuleID(), Owner: "owner"}
	e := r.Record(s.ctx, c, models.ActionSealed, "owner", models.AuditSuccess)

	r.Publish(requestcontext.WithRequestID(s.ctx, "req-9"), c, e)

	event := <-w.inbox
	s.Equal(c.ID, event.CapsuleID)
	s.Equal("req-9", event.RequestID)
	s.Equal(models.ActionSealed, event.Entry.Action)
}

// =============================================================================
// Worker
// =============================================================================

func (s *AuditSuite) TestWorkerDelivers() {
	sink := &recordingSink{}
	w := NewWorker(sink, s.logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Enqueue(ctx, Event{CapsuleID: id.NewCapsuleID()}, Event{CapsuleID: id.NewCapsuleID()})
	s.Eventually(func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

func (s *AuditSuite) TestWorkerDropsWhenQueueFull() {
	sink := &recordingSink{}
	w := NewWorker(sink, s.logger, WithQueueSize(1))

	w.Enqueue(s.ctx, Event{}, Event{}, Event{})
	s.Len(w.inbox, 1)
}

func (s *AuditSuite) TestWorkerStopsCallingBrokenSink() {
	sink := &recordingSink{err: errors.New("broker down")}
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	w := NewWorker(sink, s.logger, WithBreaker(breaker))

	for i := 0; i < 5; i++ {
		w.deliver(s.ctx, Event{})
	}
	s.True(breaker.IsOpen())

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	w.deliver(s.ctx, Event{})
	s.Equal(0, sink.count(), "open circuit skips the sink until cooldown")
}

// =============================================================================
// Feed and stats
// =============================================================================

func (s *AuditSuite) feedFixture() []*models.Capsule {
	r := NewRecorder(s.logger)
	a := &models.Capsule{ID: id.NewCapsuleID(), Title: "Will"}
	b := &models.Capsule{ID: id.NewCapsuleID(), Title: "Wallet"}
	at := func(h int) context.Context { return requestcontext.WithTime(s.ctx, s.now.Add(time.Duration(h)*time.Hour)) }

	r.Record(at(0), a, models.ActionCreated, "owner", models.AuditSuccess)
	r.Record(at(1), b, models.ActionCreated, "owner", models.AuditSuccess)
	r.Record(at(2), a, models.ActionSealed, "owner", models.AuditSuccess)
	r.Record(at(3), a, models.ActionPing, "owner", models.AuditSuccess)
	r.Record(at(4), b, models.ActionModificationRejected, "owner", models.AuditFailed)
	r.Record(at(5), a, models.ActionClaimFailed, "heir@example.com", models.AuditFailed)
	return []*models.Capsule{a, b}
}

func (s *AuditSuite) TestFeed() {
	capsules := s.feedFixture()

	s.Run("all entries newest first", func() {
		items := Feed(capsules, FeedQuery{Filter: FilterAll})
		s.Require().Len(items, 6)
		s.Equal(models.ActionClaimFailed, items[0].Entry.Action)
		s.Equal(models.ActionCreated, items[5].Entry.Action)
		s.Equal("Will", items[5].CapsuleTitle)
	})

	s.Run("filter by family", func() {
		s.Len(Feed(capsules, FeedQuery{Filter: FilterPing}), 1)
		s.Len(Feed(capsules, FeedQuery{Filter: FilterSeal}), 3)
		s.Len(Feed(capsules, FeedQuery{Filter: FilterClaim}), 1)
	})

	s.Run("search matches title action or actor", func() {
		s.Len(Feed(capsules, FeedQuery{Filter: FilterAll, Search: "wallet"}), 2)
		s.Len(Feed(capsules, FeedQuery{Filter: FilterAll, Search: "HEIR@"}), 1)
	})

	s.Run("limit keeps the newest", func() {
		items := Feed(capsules, FeedQuery{Filter: FilterAll, Limit: 2})
		s.Require().Len(items, 2)
		s.Equal(models.ActionModificationRejected, items[1].Entry.Action)
	})
}

func (s *AuditSuite) TestStats() {
	st := ComputeStats(s.feedFixture())
	s.Equal(Stats{Pings: 1, Activations: 3, Claims: 1, Failures: 2}, st)
}

func (s *AuditSuite) TestParseFilter() {
	f, err := ParseFilter(" ping ")
	s.Require().NoError(err)
	s.Equal(FilterPing, f)

	f, err = ParseFilter("")
	s.Require().NoError(err)
	s.Equal(FilterAll, f)

	_, err = ParseFilter("DELETE")
	s.Error(err)
}
