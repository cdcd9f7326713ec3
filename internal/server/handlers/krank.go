package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	apierrors "github.com/l3viathan/apy4i/internal/errors"
	"github.com/l3viathan/apy4i/internal/krank"
	"github.com/l3viathan/apy4i/internal/utils"
)

// KrankHandler serves the table-football rankings.
type KrankHandler struct {
	svc         *krank.Service
	defaultLast int
}

// NewKrankHandler creates a krank handler. defaultLast is the number of
// matches returned when the request does not say.
func NewKrankHandler(svc *krank.Service, defaultLast int) *KrankHandler {
	return &KrankHandler{svc: svc, defaultLast: defaultLast}
}

// TableRequest is the request for the ranking table (empty).
type TableRequest struct{}

// TableResponse maps visible players to their rating.
type TableResponse struct {
	Ratings map[string]float64 `json:"ratings"`
}

// Table returns the ratings of visible players.
func (h *KrankHandler) Table(ctx context.Context, _ *TableRequest) (*TableResponse, error) {
	r, err := h.svc.Table(ctx)
	if err != nil {
		return nil, apierrors.FromStorage(err)
	}
	return &TableResponse{Ratings: r}, nil
}

// MatchesRequest selects the most recent matches.
type MatchesRequest struct {
	Last int `query:"last"`
}

// MatchesResponse lists matches, oldest first.
type MatchesResponse struct {
	Matches []krank.Match `json:"matches"`
}

// Matches returns the most recent matches.
func (h *KrankHandler) Matches(ctx context.Context, req *MatchesRequest) (*MatchesResponse, error) {
	last := req.Last
	if last <= 0 {
		last = h.defaultLast
	}
	m, err := h.svc.Matches(ctx, last)
	if err != nil {
		return nil, apierrors.FromStorage(err)
	}
	if m == nil {
		m = []krank.Match{}
	}
	return &MatchesResponse{Matches: m}, nil
}

// matchesHTML renders matches as avatar rows, one per match.
var matchesHTML = template.Must(template.New("matches").Parse(
	`{{range $i, $m := .}}{{if $i}}<br><br>{{end}}` +
		`{{range $m.Winners}}<span class="player" title="{{.}}" style="background-image: url(avatars/{{.}}.jpeg);"></span>{{end}}` +
		`⚔️` +
		`{{range $m.Losers}}<span class="player" title="{{.}}" style="background-image: url(avatars/{{.}}.jpeg);"></span>{{end}}` +
		` (±{{$m.Value}})` +
		`{{end}}`))

type matchRow struct {
	Winners []string
	Losers  []string
	Value   float64
}

// MatchesHTML renders the most recent matches as an HTML fragment showing
// player avatars, for embedding in a dashboard.
func (h *KrankHandler) MatchesHTML(w http.ResponseWriter, r *http.Request) {
	last, err := strconv.Atoi(r.URL.Query().Get("last"))
	if err != nil || last <= 0 {
		last = h.defaultLast
	}
	matches, err := h.svc.Matches(r.Context(), last)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read matches", "err", err)
		utils.RespondError(w, apierrors.FromStorage(err))
		return
	}
	rows := make([]matchRow, len(matches))
	for i, m := range matches {
		rows[i] = matchRow{
			Winners: slices.Sorted(maps.Keys(m.Winners)),
			Losers:  slices.Sorted(maps.Keys(m.Losers)),
			Value:   m.Value,
		}
	}
	var b strings.Builder
	if err := matchesHTML.Execute(&b, rows); err != nil {
		slog.ErrorContext(r.Context(), "Failed to render matches", "err", err)
		utils.RespondError(w, apierrors.Internal("Failed to render matches"))
		return
	}
	utils.RespondRaw(w, http.StatusOK, "text/html; charset=utf-8", []byte(b.String()))
}

// SubmitRequest reports a finished match.
type SubmitRequest struct {
	Winners []string `json:"winners"`
	Losers  []string `json:"losers"`
}

// SubmitResponse is the logged match.
type SubmitResponse struct {
	Match *krank.Match `json:"match"`
}

// Submit records a match and updates ratings.
func (h *KrankHandler) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	m, err := h.svc.Submit(ctx, req.Winners, req.Losers)
	if err != nil {
		if errors.Is(err, krank.ErrInvalidMatch) {
			return nil, apierrors.BadRequest(err.Error())
		}
		return nil, apierrors.FromStorage(err)
	}
	return &SubmitResponse{Match: m}, nil
}

// HideRequest hides or shows a player.
type HideRequest struct {
	Player string `path:"player"`
	Hidden bool   `json:"hidden"`
}

// HideResponse is empty.
type HideResponse struct{}

// Hide changes the visibility of a player in the table.
func (h *KrankHandler) Hide(ctx context.Context, req *HideRequest) (*HideResponse, error) {
	if req.Player == "" {
		return nil, apierrors.BadRequest("player is required")
	}
	if err := h.svc.SetHidden(ctx, req.Player, req.Hidden); err != nil {
		return nil, apierrors.FromStorage(err)
	}
	return &HideResponse{}, nil
}
