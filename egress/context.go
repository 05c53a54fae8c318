// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/warden-foundation/warden/policy"
)

// Attribution headers. Callers supply these to tie an attempt to its
// originating action and project; they are consumed here and never
// forwarded upstream.
const (
	// HeaderCorr carries an explicit correlation id.
	HeaderCorr = "X-Warden-Corr"

	// HeaderAction carries the originating action id from a built-in
	// flow. Used as the correlation id when no explicit one is given.
	HeaderAction = "X-Warden-Action"

	// HeaderProject carries the project id.
	HeaderProject = "X-Warden-Project"
)

// correlationID resolves the attempt's correlation id: an explicit
// X-Warden-Corr wins, otherwise it is auto-derived from the
// originating action id.
func correlationID(h http.Header) string {
	if corr := h.Get(HeaderCorr); corr != "" {
		return corr
	}
	return h.Get(HeaderAction)
}

// describeConnect builds the descriptor for a CONNECT tunnel. The
// request target must be authority-form host:port.
func describeConnect(r *http.Request) (policy.Descriptor, error) {
	host, portText, err := net.SplitHostPort(r.Host)
	if err != nil {
		return policy.Descriptor{}, fmt.Errorf("CONNECT target %q: %w", r.Host, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return policy.Descriptor{}, fmt.Errorf("CONNECT target %q: invalid port", r.Host)
	}

	return policy.Descriptor{
		Namespace: "net.tcp.connect",
		Host:      host,
		Port:      port,
		Protocol:  "tcp",
		CorrID:    correlationID(r.Header),
		Project:   r.Header.Get(HeaderProject),
	}, nil
}

// describeForward builds the descriptor for an absolute-form HTTP
// request, deriving the capability namespace from the method.
func describeForward(r *http.Request) policy.Descriptor {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
	}

	host := r.URL.Hostname()
	port := 80
	if scheme == "https" {
		port = 443
	}
	if portText := r.URL.Port(); portText != "" {
		if parsed, err := strconv.Atoi(portText); err == nil {
			port = parsed
		}
	}

	return policy.Descriptor{
		Namespace: "net.http." + strings.ToLower(r.Method),
		Host:      host,
		Port:      port,
		Protocol:  scheme,
		CorrID:    correlationID(r.Header),
		Project:   r.Header.Get(HeaderProject),
	}
}

// hopByHopHeaders are stripped from forwarded requests and responses
// per RFC 9110 §7.6.1.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// stripForwardHeaders removes hop-by-hop headers, any headers named by
// Connection, and the attribution headers from an outbound request.
func stripForwardHeaders(h http.Header) {
	for _, name := range strings.Split(h.Get("Connection"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			h.Del(name)
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
	h.Del(HeaderCorr)
	h.Del(HeaderAction)
	h.Del(HeaderProject)
}
