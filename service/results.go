package service

import (
	"context"
	"math"
	"sort"
	"time"

	"election-portal/models"
	"election-portal/storage"
)

// positionRank orders the council positions the way the ballot lists them.
var positionRank = map[string]int{
	"president":      1,
	"vice_president": 2,
	"secretary":      3,
	"treasurer":      4,
}

// ResultsStore is the storage view the results service needs.
type ResultsStore interface {
	Nominations(ctx context.Context, approvedOnly bool) ([]models.Nomination, error)
	VoteCountsByCandidate(ctx context.Context) (map[uint]int64, error)
	Stats(ctx context.Context) (*storage.StatsCounts, error)
	Settings(ctx context.Context, keys ...string) (map[string]string, error)
}

// CandidateResult is one candidate's tally within a position.
type CandidateResult struct {
	ID            uint    `json:"id"`
	CandidateName string  `json:"candidate_name"`
	Position      string  `json:"position"`
	Manifesto     string  `json:"manifesto"`
	Photo         string  `json:"photo,omitempty"`
	Votes         int64   `json:"votes"`
	Percentage    float64 `json:"percentage"`
}

// LeadingCandidate identifies the current front-runner for a position.
type LeadingCandidate struct {
	Name  string `json:"name"`
	Votes int64  `json:"votes"`
}

// PositionResult is the tabulated outcome for one position.
type PositionResult struct {
	Position        string            `json:"position"`
	TotalVotes      int64             `json:"total_votes"`
	TotalCandidates int               `json:"total_candidates"`
	Leading         *LeadingCandidate `json:"leading_candidate,omitempty"`
	IsTie           bool              `json:"is_tie"`
	Candidates      []CandidateResult `json:"candidates"`
}

// ResultsService tabulates election results and activity statistics.
type ResultsService struct {
	store ResultsStore
	now   func() time.Time
}

func NewResultsService(store ResultsStore) *ResultsService {
	return &ResultsService{store: store, now: time.Now}
}

// Available reports whether results may be shown to the caller. Results stay
// admin-only until the election end date passes, unless results_public is set.
func (s *ResultsService) Available(ctx context.Context, isAdmin bool) (bool, error) {
	if isAdmin {
		return true, nil
	}
	settings, err := s.store.Settings(ctx, "results_public", "election_end_date")
	if err != nil {
		return false, err
	}
	if settings["results_public"] == "1" {
		return true, nil
	}
	if end, ok := settings["election_end_date"]; ok {
		endAt, err := time.ParseInLocation(settingTimeLayout, end, s.now().Location())
		if err == nil && s.now().After(endAt) {
			return true, nil
		}
		return false, nil
	}
	return true, nil
}

// Results tabulates per-candidate counts grouped by position, with leading
// candidate and tie detection.
func (s *ResultsService) Results(ctx context.Context) ([]PositionResult, error) {
	noms, err := s.store.Nominations(ctx, true)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.VoteCountsByCandidate(ctx)
	if err != nil {
		return nil, err
	}

	byPosition := make(map[string]*PositionResult)
	for _, n := range noms {
		pr := byPosition[n.Position]
		if pr == nil {
			pr = &PositionResult{Position: n.Position}
			byPosition[n.Position] = pr
		}
		votes := counts[n.ID]
		pr.TotalVotes += votes
		pr.TotalCandidates++
		pr.Candidates = append(pr.Candidates, CandidateResult{
			ID:            n.ID,
			CandidateName: n.CandidateName,
			Position:      n.Position,
			Manifesto:     n.Manifesto,
			Photo:         n.Photo,
			Votes:         votes,
		})
	}

	results := make([]PositionResult, 0, len(byPosition))
	for _, pr := range byPosition {
		sort.Slice(pr.Candidates, func(i, j int) bool {
			if pr.Candidates[i].Votes != pr.Candidates[j].Votes {
				return pr.Candidates[i].Votes > pr.Candidates[j].Votes
			}
			return pr.Candidates[i].CandidateName < pr.Candidates[j].CandidateName
		})
		for i := range pr.Candidates {
			c := &pr.Candidates[i]
			if pr.TotalVotes > 0 {
				pct := float64(c.Votes) / float64(pr.TotalVotes) * 100
				c.Percentage = math.Round(pct*100) / 100
			}
			if c.Votes > 0 {
				switch {
				case pr.Leading == nil || c.Votes > pr.Leading.Votes:
					pr.Leading = &LeadingCandidate{Name: c.CandidateName, Votes: c.Votes}
					pr.IsTie = false
				case c.Votes == pr.Leading.Votes:
					pr.IsTie = true
				}
			}
		}
		results = append(results, *pr)
	}

	sort.Slice(results, func(i, j int) bool {
		ri, iOK := positionRank[results[i].Position]
		rj, jOK := positionRank[results[j].Position]
		switch {
		case iOK && jOK:
			return ri < rj
		case iOK:
			return true
		case jOK:
			return false
		default:
			return results[i].Position < results[j].Position
		}
	})
	return results, nil
}

// Stats returns the aggregate election activity snapshot.
func (s *ResultsService) Stats(ctx context.Context) (*storage.StatsCounts, error) {
	return s.store.Stats(ctx)
}
