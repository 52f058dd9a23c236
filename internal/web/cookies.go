// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package web

import (
	"net/http"
	"net/url"
	"time"
)

// Cookie names.
const (
	SessionCookie  = "sid"
	TrackingCookie = "tid"
)

// trackingMaxAge is the lifetime of the tracking cookie.
const trackingMaxAge = 365 * 24 * time.Hour

// setSessionCookie issues the session cookie. A zero maxAge leaves the
// cookie scoped to the browser session.
func setSessionCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie expires the session cookie.
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func setTrackingCookie(w http.ResponseWriter, trackingID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TrackingCookie,
		Value:    trackingID,
		Path:     "/",
		MaxAge:   int(trackingMaxAge / time.Second),
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// cookieValues returns the percent-decoded values of every cookie named
// name across all Cookie headers, in order. Values that fail to decode
// are skipped.
func cookieValues(r *http.Request, name string) []string {
	var values []string
	for _, c := range r.Cookies() {
		if c.Name != name {
			continue
		}
		v, err := url.QueryUnescape(c.Value)
		if err != nil || v == "" {
			continue
		}
		values = append(values, v)
	}
	return values
}
