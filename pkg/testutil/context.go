package testutil

import (
	"context"
	"net/http"
	"time"

	id "kairos/pkg/domain"
	"kairos/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// Actors that fail validation are not added.
func WithActor(req *http.Request, actor string) *http.Request {
	if parsed, err := id.ParseActorID(actor); err == nil {
		return req.WithContext(requestcontext.WithActor(req.Context(), parsed))
	}
	return req
}

// ActorContext returns a context carrying actor and a fixed request time.
// Services read both, so most service tests start from here.
func ActorContext(actor id.ActorID, now time.Time) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actor)
	return requestcontext.WithTime(ctx, now)
}
