// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/warden-foundation/warden/event"
	"github.com/warden-foundation/warden/ledger"
	"github.com/warden-foundation/warden/lease"
	"github.com/warden-foundation/warden/policy"
)

// defaultLeaseTTL applies when a lease request omits ttl_secs.
const defaultLeaseTTL = time.Hour

// recentLimitCap bounds GET /v1/egress/recent result sizes.
const (
	recentLimitDefault = 100
	recentLimitCap     = 1000
)

// controlAPI serves the operator surface on the control listener.
type controlAPI struct {
	policy  *policy.Handle
	leases  *lease.Store
	ledger  *ledger.Ledger
	events  *event.Publisher
	metrics *Metrics
	logger  *slog.Logger
}

func (a *controlAPI) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/leases", a.handleIssueLease)
	mux.HandleFunc("GET /v1/leases", a.handleListLeases)
	mux.HandleFunc("DELETE /v1/leases/{id}", a.handleRevokeLease)
	mux.HandleFunc("GET /v1/egress/recent", a.handleRecent)
	mux.HandleFunc("GET /v1/egress/events", a.handleEvents)
	mux.HandleFunc("GET /v1/policy", a.handlePolicy)
	mux.HandleFunc("POST /v1/policy/reload", a.handlePolicyReload)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

type issueLeaseRequest struct {
	// Capability is the namespace prefix the lease covers. "prefix"
	// is accepted as an alias.
	Capability string `json:"capability"`
	Prefix     string `json:"prefix"`
	Project    string `json:"project"`
	TTLSecs    int64  `json:"ttl_secs"`
}

func (a *controlAPI) handleIssueLease(w http.ResponseWriter, r *http.Request) {
	var req issueLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	prefix := req.Capability
	if prefix == "" {
		prefix = req.Prefix
	}
	if req.TTLSecs < 0 {
		writeError(w, http.StatusBadRequest, "ttl_secs must not be negative")
		return
	}
	ttl := defaultLeaseTTL
	if req.TTLSecs > 0 {
		ttl = time.Duration(req.TTLSecs) * time.Second
	}

	granted, err := a.leases.Issue(prefix, req.Project, ttl)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	a.logger.Info("lease issued",
		"id", granted.ID,
		"prefix", granted.Prefix,
		"project", granted.Project,
		"expires_at", granted.ExpiresAt,
	)
	writeJSON(w, http.StatusCreated, granted)
}

func (a *controlAPI) handleListLeases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"leases": a.leases.List()})
}

func (a *controlAPI) handleRevokeLease(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.leases.Revoke(id); err != nil {
		if errors.Is(err, lease.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lease %s not found", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	a.logger.Info("lease revoked", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *controlAPI) handleRecent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := recentLimitDefault
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", raw)
			return
		}
		limit = min(parsed, recentLimitCap)
	}

	filter := ledger.Filter{
		Project:  query.Get("project"),
		Decision: strings.ToLower(query.Get("decision")),
		Host:     query.Get("host"),
	}
	if filter.Decision != "" && filter.Decision != "allow" && filter.Decision != "deny" {
		writeError(w, http.StatusBadRequest, "invalid decision filter %q", filter.Decision)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": a.ledger.Recent(limit, filter),
	})
}

// policyStatus is the GET /v1/policy response shape.
type policyStatus struct {
	Posture         string `json:"posture"`
	Origin          string `json:"origin"`
	Default         string `json:"default"`
	BlockIPLiterals bool   `json:"block_ip_literals"`
	Rules           int    `json:"rules"`
	LastError       string `json:"last_error,omitempty"`
}

func (a *controlAPI) currentPolicyStatus() policyStatus {
	rules := a.policy.Current()
	status := policyStatus{
		Posture:         rules.Posture.String(),
		Origin:          rules.Origin,
		Default:         "deny",
		BlockIPLiterals: rules.BlockIPLiterals,
		Rules:           rules.Len(),
		LastError:       a.policy.LastError(),
	}
	if rules.Default {
		status.Default = "allow"
	}
	return status
}

func (a *controlAPI) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.currentPolicyStatus())
}

func (a *controlAPI) handlePolicyReload(w http.ResponseWriter, r *http.Request) {
	if err := a.policy.Reload(); err != nil {
		// The deny-all fallback is already installed; report both the
		// failure and the rules now in force.
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"policy": a.currentPolicyStatus(),
		})
		return
	}
	writeJSON(w, http.StatusOK, a.currentPolicyStatus())
}

func (a *controlAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"records":     a.ledger.Len(),
		"subscribers": a.events.SubscriberCount(),
	})
}
