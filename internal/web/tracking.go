// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package web

import (
	"context"
	"net/http"

	"github.com/tollgate/tollgate/internal/id"
	"github.com/tollgate/tollgate/internal/logging"
)

type trackingIDKey struct{}

// TrackingIDFromContext returns the id assigned by Tracking.
func TrackingIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(trackingIDKey{}).(string)
	return v
}

// Tracking reuses the first valid tid cookie or assigns a new id, and
// refreshes the cookie on every response.
func Tracking(ids id.Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var trackingID string
			for _, v := range cookieValues(r, TrackingCookie) {
				if id.Valid(v) {
					trackingID = v
					break
				}
			}
			if trackingID == "" {
				trackingID = ids.New()
			}
			setTrackingCookie(w, trackingID)

			ctx := context.WithValue(r.Context(), trackingIDKey{}, trackingID)
			logger := logging.FromContext(ctx).With("tracking_id", trackingID)
			ctx = logging.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
