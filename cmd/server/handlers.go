package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lox/moltpoker/internal/auth"
	"github.com/lox/moltpoker/internal/protocol"
	"github.com/lox/moltpoker/internal/session"
	"github.com/lox/moltpoker/internal/stats"
	"github.com/lox/moltpoker/internal/store"
	"github.com/lox/moltpoker/internal/tablemgr"
)

// protocolVersion is negotiated with joining agents per spec §6.
const (
	protocolVersion              = 1
	minSupportedProtocolVersion  = 1
)

// api bundles the dependencies the REST handlers close over, grounded on the
// teacher's Server struct (pool/botIDGen/logger fields closed over by its
// http.HandlerFunc methods).
type api struct {
	tables      *tablemgr.Manager
	sessions    *session.Registry
	store       store.Store
	stats       *stats.Collector
	validator   auth.Validator
	baseURL     string
	wsBaseURL   string
	skillDocURL string
	logger      *log.Logger
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/agents", a.handleRegisterAgent)
	mux.HandleFunc("POST /v1/tables/{id}/join", a.handleJoinTable)
	mux.HandleFunc("POST /v1/tables/{id}/leave", a.handleLeaveTable)
	mux.HandleFunc("GET /v1/tables", a.handleListTables)
	mux.HandleFunc("GET /v1/tables/{id}/stats", a.handleTableStats)
	mux.HandleFunc("GET /v1/agents/{id}/stats", a.handleAgentStats)
	mux.HandleFunc("GET /skill.md", a.handleSkillDoc)
}

func (a *api) writeError(w http.ResponseWriter, status int, code protocol.ErrorCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(protocol.ErrorMessage{Type: protocol.TypeError, Code: code, Message: msg})
}

type registerRequest struct {
	Kind string `json:"kind"` // "player" or "npc"; defaults to "player"
}

// handleRegisterAgent implements POST /v1/agents.
func (a *api) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, protocol.InternalError, "failed to generate api key")
		return
	}
	hash, err := auth.HashAPIKey(apiKey)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, protocol.InternalError, "failed to hash api key")
		return
	}

	agentID := uuid.NewString()
	if err := a.store.CreateAgent(r.Context(), store.AgentRecord{
		AgentID: agentID, APIKeyHash: hash, Kind: store.NormalizeAgentKind(req.Kind), RegisteredAt: time.Now(),
	}); err != nil {
		a.writeError(w, http.StatusInternalServerError, protocol.InternalError, "failed to persist agent")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"agent_id": agentID,
		"api_key":  apiKey,
	})
}

// handleTableStats implements GET /v1/tables/{id}/stats: hands completed and
// timeouts for one table, per SPEC_FULL.md's basic statistics extension.
func (a *api) handleTableStats(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("id")
	if a.stats == nil {
		a.writeError(w, http.StatusNotFound, protocol.TableNotFound, "stats not available")
		return
	}
	s, ok := a.stats.TableStats(tableID)
	if !ok {
		a.writeError(w, http.StatusNotFound, protocol.TableNotFound, "no stats recorded for this table yet")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// handleAgentStats implements GET /v1/agents/{id}/stats: hands played, net
// chips, and timeouts for one agent across every table it has played at.
func (a *api) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if a.stats == nil {
		a.writeError(w, http.StatusNotFound, protocol.ValidationError, "stats not available")
		return
	}
	s, ok := a.stats.AgentStats(agentID)
	if !ok {
		a.writeError(w, http.StatusNotFound, protocol.ValidationError, "no stats recorded for this agent yet")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// bearerToken extracts the credential from an "Authorization: Bearer <...>"
// header.
func bearerToken(r *http.Request) (string, bool) {
	return strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// authenticateAgent verifies the request's Bearer api_key against agentID's
// stored hash, per spec §6 ("auth: api_key" on join). If an external
// identity validator is configured, a credential it accepts for this agent
// is honored even when no local api_key hash matches — the seam named in
// spec §1 ("validating external credentials... out of scope, pluggable").
func (a *api) authenticateAgent(r *http.Request, agentID string) error {
	apiKey, ok := bearerToken(r)
	if !ok || apiKey == "" {
		return auth.ErrInvalidToken
	}
	if rec, err := a.store.GetAgentByID(r.Context(), agentID); err == nil {
		if auth.VerifyAPIKey(rec.APIKeyHash, apiKey) {
			return nil
		}
	}
	if a.validator != nil {
		identity, err := a.validator.Validate(r.Context(), apiKey)
		if err == nil && identity.AgentID == agentID {
			return nil
		}
	}
	return auth.ErrInvalidToken
}

type joinRequest struct {
	AgentID               string `json:"agent_id"`
	ClientProtocolVersion int    `json:"client_protocol_version"`
}

// handleJoinTable implements POST /v1/tables/{id}/join.
func (a *api) handleJoinTable(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("id")

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, protocol.ValidationError, "malformed request body")
		return
	}
	if req.AgentID == "" {
		a.writeError(w, http.StatusBadRequest, protocol.ValidationError, "agent_id is required")
		return
	}
	if req.ClientProtocolVersion != 0 && req.ClientProtocolVersion < minSupportedProtocolVersion {
		a.writeError(w, http.StatusBadRequest, protocol.OutdatedClient, "client protocol version too old")
		return
	}
	if err := a.authenticateAgent(r, req.AgentID); err != nil {
		a.writeError(w, http.StatusUnauthorized, protocol.InvalidAPIKey, "invalid api key")
		return
	}

	table, ok := a.tables.Get(tableID)
	if !ok {
		a.writeError(w, http.StatusNotFound, protocol.TableNotFound, "table not found")
		return
	}

	seatID, err := a.tables.SeatAgent(tableID, req.AgentID)
	if err != nil {
		a.writeError(w, http.StatusConflict, protocol.TableFull, err.Error())
		return
	}

	sess := a.sessions.Create(req.AgentID, tableID, seatID)

	writeJSON(w, http.StatusOK, map[string]any{
		"seat_id":                        seatID,
		"session_token":                  sess.Token,
		"ws_url":                         a.wsBaseURL + "/v1/ws?session=" + sess.Token,
		"protocol_version":               protocolVersion,
		"min_supported_protocol_version": minSupportedProtocolVersion,
		"skill_doc_url":                  a.skillDocURL,
		"action_timeout_ms":              table.Config.ActionTimeoutMs,
	})
}

type leaveRequest struct {
	SessionToken string `json:"session_token"`
}

// handleLeaveTable implements POST /v1/tables/{id}/leave. It authenticates
// by session_token only; a request without a valid session is rejected, and
// an api_key is not accepted here.
func (a *api) handleLeaveTable(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("id")

	var req leaveRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	sess, ok := a.sessions.Lookup(req.SessionToken)
	if !ok {
		a.writeError(w, http.StatusUnauthorized, protocol.InvalidSession, "invalid or expired session")
		return
	}
	if sess.TableID != tableID {
		a.writeError(w, http.StatusBadRequest, protocol.ValidationError, "session does not belong to this table")
		return
	}

	// Leaving an already-ended table is a documented idempotent success
	// (spec §7): UnseatAgent returning "table not found" still counts here.
	_ = a.tables.UnseatAgent(tableID, sess.SeatID)
	a.sessions.Revoke(req.SessionToken)

	w.WriteHeader(http.StatusNoContent)
}

type tableSummary struct {
	TableID    string `json:"table_id"`
	Status     string `json:"status"`
	SeatsUsed  int    `json:"seats_used"`
	MaxSeats   int    `json:"max_seats"`
	SmallBlind int    `json:"small_blind"`
	BigBlind   int    `json:"big_blind"`
}

// handleListTables implements GET /v1/tables?status=.
func (a *api) handleListTables(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	records, err := a.store.ListTables(r.Context(), status)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, protocol.InternalError, "failed to list tables")
		return
	}

	out := make([]tableSummary, 0, len(records))
	for _, rec := range records {
		seatsUsed := 0
		if seats, err := a.store.GetSeats(r.Context(), rec.ID); err == nil {
			seatsUsed = len(seats)
		}
		out = append(out, tableSummary{
			TableID: rec.ID, Status: rec.Status, SeatsUsed: seatsUsed,
			MaxSeats: rec.MaxSeats, SmallBlind: rec.SmallBlind, BigBlind: rec.BigBlind,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"tables": out})
}

// handleSkillDoc implements GET /skill.md, templated with the concrete base
// and channel URLs per spec §6.
func (a *api) handleSkillDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(renderSkillDoc(a.baseURL, a.wsBaseURL)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
