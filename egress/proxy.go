// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/warden-foundation/warden/ledger"
	"github.com/warden-foundation/warden/policy"
)

// copyBufferSize is the chunk size for the data-plane copy loops. Byte
// counters advance once per chunk.
const copyBufferSize = 16 * 1024

// proxyHandler is the data plane: CONNECT tunneling and absolute-form
// HTTP forwarding, gated by the interceptor.
type proxyHandler struct {
	interceptor *Interceptor
	dialTimeout time.Duration
	idleTimeout time.Duration
	transport   *http.Transport
	logger      *slog.Logger
}

func newProxyHandler(interceptor *Interceptor, timeouts TimeoutsConfig, logger *slog.Logger) *proxyHandler {
	dial := timeouts.Dial.Std()
	return &proxyHandler{
		interceptor: interceptor,
		dialTimeout: dial,
		idleTimeout: timeouts.Idle.Std(),
		transport: &http.Transport{
			DialContext:        (&net.Dialer{Timeout: dial}).DialContext,
			DisableCompression: true,
		},
		logger: logger,
	}
}

func (h *proxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		h.handleConnect(w, r)
		return
	}
	if !r.URL.IsAbs() {
		http.Error(w, "proxy requires absolute-form requests", http.StatusBadRequest)
		return
	}
	h.handleForward(w, r)
}

// writeDenied sends the synthetic rejection. The body is opaque: it
// never echoes rule or lease internals beyond what the caller already
// supplied.
func writeDenied(w http.ResponseWriter, verdict policy.Verdict) {
	body := "egress blocked"
	if verdict.Reason == policy.ReasonLeaseMissing {
		body = "lease required"
	}
	http.Error(w, body, http.StatusForbidden)
}

func (h *proxyHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	d, err := describeConnect(r)
	if err != nil {
		http.Error(w, "malformed CONNECT target", http.StatusBadRequest)
		return
	}

	rec, verdict, err := h.interceptor.Admit(d)
	if err != nil {
		http.Error(w, "egress blocked", http.StatusForbidden)
		return
	}
	if verdict.Decision != policy.Allow {
		writeDenied(w, verdict)
		return
	}

	upstream, err := net.DialTimeout("tcp", r.Host, h.dialTimeout)
	if err != nil {
		h.interceptor.Finish(rec.ID, ledger.StatusIncomplete)
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		upstream.Close()
		h.interceptor.Finish(rec.ID, ledger.StatusIncomplete)
		http.Error(w, "tunneling unsupported", http.StatusInternalServerError)
		return
	}
	client, clientRW, err := hijacker.Hijack()
	if err != nil {
		upstream.Close()
		h.interceptor.Finish(rec.ID, ledger.StatusIncomplete)
		return
	}

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		client.Close()
		upstream.Close()
		h.interceptor.Finish(rec.ID, ledger.StatusIncomplete)
		return
	}

	status := h.tunnel(client, clientRW.Reader, upstream, rec.ID)
	h.interceptor.Finish(rec.ID, status)
}

// tunnel streams bytes both ways until both directions end. A clean
// shutdown (EOF both ways, half-closes propagated) completes the
// record; an idle timeout or transport error leaves it incomplete.
func (h *proxyHandler) tunnel(client net.Conn, clientR io.Reader, upstream net.Conn, id uint64) ledger.Status {
	results := make(chan error, 2)

	// Caller to upstream: counts as bytes_out.
	go func() {
		results <- h.copyDirection(upstream, clientR, client, id, false)
	}()
	// Upstream to caller: counts as bytes_in.
	go func() {
		results <- h.copyDirection(client, upstream, upstream, id, true)
	}()

	first := <-results
	if first != nil {
		// Tear the peer direction down rather than waiting for its
		// idle deadline.
		client.Close()
		upstream.Close()
	}
	second := <-results
	client.Close()
	upstream.Close()

	if first != nil || second != nil {
		return ledger.StatusIncomplete
	}
	return ledger.StatusCompleted
}

// copyDirection pumps one direction of a tunnel. src is the read side
// (possibly buffered); srcConn carries its read deadline. Returns nil
// on clean EOF, having propagated the half-close to dst.
func (h *proxyHandler) copyDirection(dst net.Conn, src io.Reader, srcConn net.Conn, id uint64, inbound bool) error {
	buf := make([]byte, copyBufferSize)
	for {
		if h.idleTimeout > 0 {
			srcConn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if inbound {
				h.interceptor.CountBytes(id, int64(n), 0)
			} else {
				h.interceptor.CountBytes(id, 0, int64(n))
			}
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if tcp, ok := dst.(*net.TCPConn); ok {
					tcp.CloseWrite()
				}
				return nil
			}
			return readErr
		}
	}
}

func (h *proxyHandler) handleForward(w http.ResponseWriter, r *http.Request) {
	d := describeForward(r)

	rec, verdict, err := h.interceptor.Admit(d)
	if err != nil {
		http.Error(w, "egress blocked", http.StatusForbidden)
		return
	}
	if verdict.Decision != policy.Allow {
		writeDenied(w, verdict)
		return
	}

	outbound := r.Clone(r.Context())
	outbound.RequestURI = ""
	stripForwardHeaders(outbound.Header)
	if outbound.Body != nil && outbound.Body != http.NoBody {
		outbound.Body = &countingReadCloser{
			inner: outbound.Body,
			count: func(n int) { h.interceptor.CountBytes(rec.ID, 0, int64(n)) },
		}
	}

	resp, err := h.transport.RoundTrip(outbound)
	if err != nil {
		h.interceptor.Finish(rec.ID, ledger.StatusIncomplete)
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for name, values := range resp.Header {
		header[name] = values
	}
	stripForwardHeaders(header)
	w.WriteHeader(resp.StatusCode)

	status := h.relayBody(w, resp.Body, rec.ID)
	h.interceptor.Finish(rec.ID, status)
}

// relayBody streams the upstream response to the caller, counting
// bytes_in per chunk and flushing so in-flight counters stay live for
// pull-based observers.
func (h *proxyHandler) relayBody(w http.ResponseWriter, body io.Reader, id uint64) ledger.Status {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			h.interceptor.CountBytes(id, int64(n), 0)
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return ledger.StatusIncomplete
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return ledger.StatusCompleted
			}
			return ledger.StatusIncomplete
		}
	}
}

// countingReadCloser counts bytes as the transport drains a request
// body toward the upstream.
type countingReadCloser struct {
	inner io.ReadCloser
	count func(n int)
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.inner.Read(p)
	if n > 0 {
		c.count(n)
	}
	return n, err
}

func (c *countingReadCloser) Close() error { return c.inner.Close() }
