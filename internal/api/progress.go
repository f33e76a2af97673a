package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fluentia/fluentia/internal/app/engagement"
	"github.com/fluentia/fluentia/internal/domain"
)

type userKey struct{}

// requireUser rejects requests without an X-User-ID header.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header", "unauthenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}

// AwardBody is the request body for POST /api/progress/award.
type AwardBody struct {
	Source      string `json:"source"`
	SourceSlug  string `json:"source_slug"`
	SessionID   string `json:"session_id"`
	DedupeKey   string `json:"dedupe_key,omitempty"`
	Perfect     bool   `json:"perfect"`
	Correct     int    `json:"correct"`
	Answers     int    `json:"answers"`
	CompletedOn string `json:"completed_on,omitempty"` // YYYY-MM-DD
}

func (b AwardBody) request(userID string) (engagement.AwardRequest, error) {
	if b.Source == "" || b.SourceSlug == "" {
		return engagement.AwardRequest{}, fmt.Errorf("%w: source and source_slug are required", domain.ErrInvalidArgument)
	}
	req := engagement.AwardRequest{
		UserID:     userID,
		Source:     b.Source,
		SourceSlug: b.SourceSlug,
		SessionID:  b.SessionID,
		DedupeKey:  b.DedupeKey,
		Inputs:     engagement.XPInputs{Perfect: b.Perfect, Correct: b.Correct, Answers: b.Answers},
	}
	if req.DedupeKey == "" {
		req.DedupeKey = engagement.DefaultDedupeKey(b.Source, b.SourceSlug)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if b.CompletedOn != "" {
		day, err := engagement.ParseDate(b.CompletedOn)
		if err != nil {
			return engagement.AwardRequest{}, err
		}
		req.CompletedOn = day
	}
	return req, nil
}

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var body AwardBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), domain.Kind(domain.ErrInvalidArgument))
		return
	}
	req, err := body.request(userFrom(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := s.awards.Complete(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	total, err := s.awards.Store().GetXPTotal(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("%w: get xp total: %w", domain.ErrStorage, err))
		return
	}
	progress, err := s.awards.Curve().Compute(total.XPTotal)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("%w: compute level: %w", domain.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":             userID,
		"xp_total":            total.XPTotal,
		"level":               progress.Level,
		"xp_in_current_level": progress.XPInCurrentLevel,
		"xp_to_next_level":    progress.XPToNextLevel,
	})
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := s.awards.Streaks().Current(r.Context(), userFrom(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	earned, err := s.awards.Badges().Earned(r.Context(), userFrom(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]domain.BadgeSummary, 0, len(earned))
	for _, b := range earned {
		out = append(out, b.Summary())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": out})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": s.awards.Badges().Definitions()})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notify := s.awards.Notifications()
	if notify == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": []domain.Notification{}})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", domain.Kind(domain.ErrInvalidArgument))
			return
		}
		limit = n
	}
	pending, err := notify.Pending(r.Context(), userFrom(r), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if pending == nil {
		pending = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": pending})
}

func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	notify := s.awards.Notifications()
	if notify == nil {
		writeError(w, http.StatusNotFound, "notifications are disabled", domain.Kind(domain.ErrNotFound))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id", domain.Kind(domain.ErrInvalidArgument))
		return
	}
	if err := notify.MarkShown(r.Context(), userFrom(r), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "shown": true})
}
