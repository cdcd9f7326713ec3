// Package krank keeps Elo rankings of table-football players on top of
// jsonldb.
package krank

import (
	"fmt"
	"math"
)

// Outcome is the result of a match from team A's point of view.
type Outcome int

const (
	// WinA means team A won.
	WinA Outcome = iota
	// WinB means team B won.
	WinB
	// Draw means neither team won.
	Draw
)

// DefaultK is the default Elo K-factor.
const DefaultK = 16

// Elo returns the rating change of each team for a match.
//
// A team's rating is the mean of its players' ratings. Both teams must have
// the same, non-zero number of players.
func Elo(teamA, teamB []float64, outcome Outcome, k float64) (float64, float64, error) {
	if len(teamA) == 0 || len(teamA) != len(teamB) {
		return 0, 0, fmt.Errorf("teams must have the same non-zero size, got %d and %d", len(teamA), len(teamB))
	}
	var sx, sy float64
	switch outcome {
	case WinA:
		sx, sy = 1, 0
	case WinB:
		sx, sy = 0, 1
	case Draw:
		sx, sy = 0.5, 0.5
	default:
		return 0, 0, fmt.Errorf("unknown outcome %d", outcome)
	}
	rx := math.Pow(10, mean(teamA)/400)
	ry := math.Pow(10, mean(teamB)/400)
	return k * (sx - rx/(rx+ry)), k * (sy - ry/(rx+ry)), nil
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
