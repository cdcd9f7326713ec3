package krank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/maruel/ksid"

	"github.com/l3viathan/apy4i/internal/jsonldb"
)

const (
	// ranksKey is both the ratings document and the match log.
	ranksKey  = "krank"
	hiddenKey = "krank_hidden"

	// DefaultRating is the rating of a player's first match.
	DefaultRating = 1000
)

// ErrInvalidMatch is returned for malformed match submissions.
var ErrInvalidMatch = errors.New("invalid match")

// Match is one entry of the match log.
type Match struct {
	ID ksid.ID `json:"id"`
	TS string  `json:"ts"`
	// Winners and Losers map each player to their rating before and after.
	Winners map[string][2]float64 `json:"winners"`
	Losers  map[string][2]float64 `json:"losers"`
	Value   float64               `json:"value"`
}

// Service reads and updates rankings.
type Service struct {
	db *jsonldb.DB
	k  float64
}

// NewService returns a Service using K-factor k. k <= 0 means DefaultK.
func NewService(db *jsonldb.DB, k float64) *Service {
	if k <= 0 {
		k = DefaultK
	}
	return &Service{db: db, k: k}
}

// Table returns the current ratings of all players that are not hidden.
func (s *Service) Table(ctx context.Context) (map[string]float64, error) {
	hidden := map[string]bool{}
	if err := s.db.View(ctx, hiddenKey, func(d jsonldb.Document) error {
		for name, v := range d {
			if b, ok := v.(bool); !ok || b {
				hidden[name] = true
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	out := map[string]float64{}
	err := s.db.View(ctx, ranksKey, func(d jsonldb.Document) error {
		for name, v := range d {
			if hidden[name] {
				continue
			}
			r, ok := rating(v)
			if !ok {
				return fmt.Errorf("rating of %q is %T, want a number", name, v)
			}
			out[name] = r
		}
		return nil
	})
	return out, err
}

// SetHidden hides or shows a player in Table.
func (s *Service) SetHidden(ctx context.Context, player string, hidden bool) error {
	return s.db.Update(ctx, hiddenKey, func(d jsonldb.Document) error {
		if hidden {
			d[player] = true
		} else {
			delete(d, player)
		}
		return nil
	})
}

// Matches returns the last n matches, oldest first. n <= 0 returns all.
func (s *Service) Matches(ctx context.Context, n int) ([]Match, error) {
	var out []Match
	for m, err := range jsonldb.IterateLogAs[Match](s.db, ranksKey) {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, m)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
	}
	return out, nil
}

// Submit records a match won by winners against losers.
//
// Ratings are updated in a single store session, then the match is appended
// to the log.
func (s *Service) Submit(ctx context.Context, winners, losers []string) (*Match, error) {
	if err := validateTeams(winners, losers); err != nil {
		return nil, err
	}
	m := &Match{
		ID:      ksid.NewID(),
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Winners: map[string][2]float64{},
		Losers:  map[string][2]float64{},
	}
	err := s.db.Update(ctx, ranksKey, func(d jsonldb.Document) error {
		current := func(name string) float64 {
			if r, ok := rating(d[name]); ok {
				return r
			}
			return DefaultRating
		}
		before := func(team []string) []float64 {
			out := make([]float64, len(team))
			for i, name := range team {
				out[i] = current(name)
			}
			return out
		}
		wb, lb := before(winners), before(losers)
		plus, minus, err := Elo(wb, lb, WinA, s.k)
		if err != nil {
			return err
		}
		plus, minus = math.Round(plus), math.Round(minus)
		for i, name := range winners {
			m.Winners[name] = [2]float64{wb[i], wb[i] + plus}
			d[name] = wb[i] + plus
		}
		for i, name := range losers {
			m.Losers[name] = [2]float64{lb[i], lb[i] + minus}
			d[name] = lb[i] + minus
		}
		m.Value = plus
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.db.Append(ctx, ranksKey, m); err != nil {
		return nil, fmt.Errorf("ratings updated but match not logged: %w", err)
	}
	return m, nil
}

func validateTeams(winners, losers []string) error {
	if len(winners) == 0 || len(losers) == 0 {
		return fmt.Errorf("%w: both teams need players", ErrInvalidMatch)
	}
	if len(winners) != len(losers) {
		return fmt.Errorf("%w: teams of %d and %d players", ErrInvalidMatch, len(winners), len(losers))
	}
	seen := map[string]bool{}
	for _, name := range slices.Concat(winners, losers) {
		if name == "" {
			return fmt.Errorf("%w: empty player name", ErrInvalidMatch)
		}
		if seen[name] {
			return fmt.Errorf("%w: %q appears twice", ErrInvalidMatch, name)
		}
		seen[name] = true
	}
	return nil
}

// rating converts a stored rating to float64. Loaded documents hold
// json.Number and values set during a session hold float64.
func rating(v any) (float64, bool) {
	switch r := v.(type) {
	case json.Number:
		f, err := r.Float64()
		return f, err == nil
	case float64:
		return r, true
	}
	return 0, false
}
