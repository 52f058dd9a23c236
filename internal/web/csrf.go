// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/apperr"
)

// XFromHeader marks requests issued by first-party scripts.
const XFromHeader = "X-From"

// csrfExempt lists paths served without the gate.
var csrfExempt = map[string]struct{}{
	"/api/v1/status": {},
}

// CSRF rejects requests for unknown hosts and requests that neither come
// from an allowed origin nor open a streaming transport.
type CSRF struct {
	hosts []glob.Glob
	xFrom []glob.Glob
}

// NewCSRF compiles the host and origin patterns. Patterns use glob syntax
// with '.' as the separator, so "*.example.com" matches one label.
func NewCSRF(siteHosts, xFrom []string) (*CSRF, error) {
	hosts, err := compilePatterns(siteHosts)
	if err != nil {
		return nil, oops.Code("CSRF_PATTERN_INVALID").With("setting", "site_hosts").Wrap(err)
	}
	origins, err := compilePatterns(xFrom)
	if err != nil {
		return nil, oops.Code("CSRF_PATTERN_INVALID").With("setting", "x_from").Wrap(err)
	}
	return &CSRF{hosts: hosts, xFrom: origins}, nil
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	var out []glob.Glob
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, oops.With("pattern", p).Wrap(err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Middleware applies the gate.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, exempt := csrfExempt[r.URL.Path]; exempt {
			next.ServeHTTP(w, r)
			return
		}
		if !matchAny(c.hosts, r.Host) {
			presentError(w, r, apperr.Forbidden("invalid host"))
			return
		}

		if _, hasXFrom := r.Header[XFromHeader]; hasXFrom {
			if origin := r.Header.Get("Origin"); origin != "" && !matchAny(c.xFrom, origin) {
				presentError(w, r, apperr.Forbidden("invalid origin"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if isStreaming(r) {
			next.ServeHTTP(w, r)
			return
		}
		presentError(w, r, apperr.Forbidden("missing x-from"))
	})
}

func isStreaming(r *http.Request) bool {
	if _, ok := r.Header["Sec-Websocket-Protocol"]; ok {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// CheckOrigin reports whether a WebSocket handshake may proceed. Requests
// without an Origin, same-host origins, and allowed origins pass.
func (c *CSRF) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return matchAny(c.xFrom, origin)
}
