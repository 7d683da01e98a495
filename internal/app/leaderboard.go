package app

import (
	"sort"
	"time"

	"exam-score-service/internal/domain"
)

// LeaderboardBuilder turns the set of qualifying attempts for a test into a
// ranked, percentile-annotated snapshot. Build is a pure function of its
// inputs, so concurrent rebuilds from the same data converge to equal
// snapshots.
type LeaderboardBuilder struct {
	engine *ScoringEngine
}

func NewLeaderboardBuilder(engine *ScoringEngine) *LeaderboardBuilder {
	return &LeaderboardBuilder{engine: engine}
}

// Build produces a fresh snapshot. An empty attempt set yields a valid
// snapshot with no entries and all-zero stats, never an error.
func (b *LeaderboardBuilder) Build(test domain.Test, attempts []domain.Attempt, now time.Time) domain.LeaderboardSnapshot {
	retained := latestAttemptPerStudent(attempts)

	entries := make([]domain.LeaderboardEntry, 0, len(retained))
	for _, attempt := range retained {
		entries = append(entries, domain.LeaderboardEntry{
			StudentID: attempt.StudentID,
			AttemptID: attempt.ID,
			Score:     attempt.Score.Obtained,
			TimeSpent: attempt.TimeSpent,
			// Subject figures are re-derived against the current bank rather
			// than trusting the breakdown cached on the attempt.
			SubjectScores: b.engine.SubjectBreakdown(attempt.Answers, test.Questions),
			SubmittedAt:   attempt.CreatedAt,
		})
	}

	// Higher score first, faster completion breaks ties. Entries tied on both
	// keys keep their load order, so the sort must be stable.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].TimeSpent < entries[j].TimeSpent
	})

	// Dense, position-based ranks: tied entries still get consecutive,
	// distinct ranks.
	for i := range entries {
		entries[i].Rank = i + 1
	}
	assignPercentiles(entries)

	snapshot := domain.LeaderboardSnapshot{
		TestID:        test.ID,
		Entries:       entries,
		TotalStudents: len(entries),
		LastUpdated:   now,
		IsStale:       false,
	}
	if len(entries) == 0 {
		return snapshot
	}

	var scoreSum, timeSum float64
	for _, e := range entries {
		scoreSum += e.Score
		timeSum += float64(e.TimeSpent)
	}
	snapshot.AverageScore = scoreSum / float64(len(entries))
	snapshot.AverageTime = timeSum / float64(len(entries))
	snapshot.TopScore = entries[0].Score
	return snapshot
}

// latestAttemptPerStudent keeps only the most recently created qualifying
// attempt per student. Latest-attempt-counts is an assumed product policy;
// best-attempt would be the alternative.
func latestAttemptPerStudent(attempts []domain.Attempt) []domain.Attempt {
	latest := make(map[string]domain.Attempt)
	var students []string
	for _, attempt := range attempts {
		if !attempt.Status.Qualifies() {
			continue
		}
		current, seen := latest[attempt.StudentID]
		if !seen {
			latest[attempt.StudentID] = attempt
			students = append(students, attempt.StudentID)
			continue
		}
		if !attempt.CreatedAt.Before(current.CreatedAt) {
			latest[attempt.StudentID] = attempt
		}
	}

	out := make([]domain.Attempt, 0, len(students))
	for _, studentID := range students {
		out = append(out, latest[studentID])
	}
	return out
}

// assignPercentiles writes the inclusive percentile on entries sorted by
// score descending: round(count(score <= mine) / N * 100, 2). A unique top
// scorer gets exactly 100.
func assignPercentiles(entries []domain.LeaderboardEntry) {
	n := len(entries)
	if n == 0 {
		return
	}
	i := 0
	for i < n {
		j := i
		for j < n && entries[j].Score == entries[i].Score {
			j++
		}
		// Entries [0, i) strictly outscore this group, so n-i entries have a
		// score less than or equal to it.
		pct := round2(float64(n-i) / float64(n) * 100)
		for k := i; k < j; k++ {
			entries[k].Percentile = pct
		}
		i = j
	}
}
