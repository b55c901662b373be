package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/atlasserver/atlasai/internal/constants"
)

// ErrNoCandidates is returned when there is nothing to rank
var ErrNoCandidates = errors.New("no candidates to rank")

// epsilon absorbs float error at the tolerance boundary
const epsilon = 1e-9

// Recommendation is the ranked result handed back to the caller
type Recommendation struct {
	Chosen       Candidate   `json:"chosen"`
	Alternatives []Candidate `json:"alternatives"`
	Warnings     []string    `json:"warnings"`
}

// AddWarning appends msg unless an identical warning is already present.
func (r *Recommendation) AddWarning(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	for _, w := range r.Warnings {
		if w == msg {
			return
		}
	}
	r.Warnings = append(r.Warnings, msg)
}

// Rank orders candidates by confidence (desc), then risk (asc), then the
// position of their provider in preference. A destructive candidate is
// never chosen while a non-destructive one sits within the confidence
// tolerance of the top.
func Rank(candidates []Candidate, preference []string) (*Recommendation, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	order := make(map[string]int, len(preference))
	for i, id := range preference {
		if _, ok := order[id]; !ok {
			order[id] = i
		}
	}
	prefIndex := func(c Candidate) int {
		if i, ok := order[c.SourceProvider]; ok {
			return i
		}
		return len(preference)
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.RiskLevel.Rank() != b.RiskLevel.Rank() {
			return a.RiskLevel.Rank() < b.RiskLevel.Rank()
		}
		return prefIndex(a) < prefIndex(b)
	})

	if sorted[0].RiskLevel == RiskDestructive {
		top := sorted[0].Confidence
		for i := 1; i < len(sorted); i++ {
			if top-sorted[i].Confidence > constants.ConfidenceTolerance+epsilon {
				break
			}
			if sorted[i].RiskLevel != RiskDestructive {
				promoted := sorted[i]
				copy(sorted[1:i+1], sorted[0:i])
				sorted[0] = promoted
				break
			}
		}
	}

	rec := &Recommendation{
		Chosen:       sorted[0],
		Alternatives: sorted[1:],
		Warnings:     []string{},
	}
	if rec.Chosen.RiskLevel == RiskDestructive {
		msg := "chosen command is destructive"
		if len(rec.Chosen.RiskReasons) > 0 {
			msg = fmt.Sprintf("%s (%s)", msg, strings.Join(rec.Chosen.RiskReasons, "; "))
		}
		rec.AddWarning(msg + ", review it carefully before running")
	}
	return rec, nil
}
