package app

import (
	"math"

	"exam-score-service/internal/domain"
)

// MarkingDefaults are applied to questions that omit their own marking scheme.
type MarkingDefaults struct {
	Positive float64
	Negative float64
}

// DefaultMarking matches the platform-wide +4/-1 scheme.
var DefaultMarking = MarkingDefaults{Positive: 4, Negative: -1}

// ScoringEngine evaluates a finalized answer set against a test's question
// bank. Evaluation is a pure function of (answers, questions, defaults), so
// any number of attempts can be scored concurrently.
type ScoringEngine struct {
	defaults MarkingDefaults
}

func NewScoringEngine(defaults MarkingDefaults) *ScoringEngine {
	return &ScoringEngine{defaults: defaults}
}

// questionOutcome is the classification of a single position.
type questionOutcome struct {
	attempted bool
	correct   bool
	awarded   float64
}

// Evaluate grades every question, writes IsCorrect/MarksAwarded onto the
// answers, and returns the score, analysis, and any anomalies. Dangling or
// malformed answers are recorded as anomalies and treated as unattempted;
// they never abort scoring of the remaining questions.
func (e *ScoringEngine) Evaluate(answers map[int]*domain.Answer, questions []domain.Question) (domain.Score, domain.Analysis, []domain.Anomaly) {
	var anomalies []domain.Anomaly

	// Answers pointing outside the question bank are unresolvable.
	for pos := range answers {
		if pos < 0 || pos >= len(questions) {
			anomalies = append(anomalies, domain.Anomaly{
				Position: pos,
				Reason:   "answer references a question that does not exist",
			})
		}
	}

	var score domain.Score
	analysis := domain.Analysis{SubjectWise: []domain.SubjectScore{}}
	buckets := make(map[string]*domain.SubjectScore)
	var order []string

	for pos, q := range questions {
		marking := e.marking(q)
		answer := answers[pos]

		outcome, anomaly := e.evaluateQuestion(q, answer, marking)
		if anomaly != "" {
			anomalies = append(anomalies, domain.Anomaly{Position: pos, Reason: anomaly})
		}
		if answer != nil {
			answer.IsCorrect = outcome.correct
			answer.MarksAwarded = outcome.awarded
		}

		score.Total += marking.Positive
		score.Obtained += outcome.awarded

		bucket, ok := buckets[q.Subject]
		if !ok {
			bucket = &domain.SubjectScore{Subject: q.Subject}
			buckets[q.Subject] = bucket
			order = append(order, q.Subject)
		}
		bucket.Total += marking.Positive
		bucket.Score += outcome.awarded
		switch {
		case !outcome.attempted:
			bucket.Unattempted++
			analysis.Unattempted++
		case outcome.correct:
			bucket.Correct++
			analysis.Correct++
		default:
			bucket.Incorrect++
			analysis.Incorrect++
		}
	}

	score.Percentage = percentage(score.Obtained, score.Total)
	for _, subject := range order {
		bucket := buckets[subject]
		bucket.Percentage = percentage(bucket.Score, bucket.Total)
		analysis.SubjectWise = append(analysis.SubjectWise, *bucket)
	}
	return score, analysis, anomalies
}

// SubjectBreakdown recomputes the per-subject aggregation for an answer set
// against the current question bank without mutating the answers. The
// leaderboard builder uses this so subject figures stay consistent even if
// the bank changed after the attempt was graded.
func (e *ScoringEngine) SubjectBreakdown(answers map[int]*domain.Answer, questions []domain.Question) []domain.SubjectScore {
	buckets := make(map[string]*domain.SubjectScore)
	var order []string

	for pos, q := range questions {
		marking := e.marking(q)
		outcome, _ := e.evaluateQuestion(q, answers[pos], marking)

		bucket, ok := buckets[q.Subject]
		if !ok {
			bucket = &domain.SubjectScore{Subject: q.Subject}
			buckets[q.Subject] = bucket
			order = append(order, q.Subject)
		}
		bucket.Total += marking.Positive
		bucket.Score += outcome.awarded
		switch {
		case !outcome.attempted:
			bucket.Unattempted++
		case outcome.correct:
			bucket.Correct++
		default:
			bucket.Incorrect++
		}
	}

	out := make([]domain.SubjectScore, 0, len(order))
	for _, subject := range order {
		bucket := buckets[subject]
		bucket.Percentage = percentage(bucket.Score, bucket.Total)
		out = append(out, *bucket)
	}
	return out
}

// evaluateQuestion classifies a single position. A non-empty anomaly reason is
// returned for answers whose payload does not match the question type.
func (e *ScoringEngine) evaluateQuestion(q domain.Question, answer *domain.Answer, marking domain.MarkingScheme) (questionOutcome, string) {
	if answer == nil {
		return questionOutcome{}, ""
	}

	switch q.Type {
	case domain.QuestionNumerical:
		if answer.NumericValue == nil {
			if answer.SelectedOption != nil {
				return questionOutcome{}, "option answer submitted for a numerical question"
			}
			return questionOutcome{}, ""
		}
		tolerance := q.Tolerance
		if tolerance <= 0 {
			tolerance = domain.DefaultNumericTolerance
		}
		if math.Abs(*answer.NumericValue-q.CorrectValue) <= tolerance {
			return questionOutcome{attempted: true, correct: true, awarded: marking.Positive}, ""
		}
		return questionOutcome{attempted: true, awarded: marking.Negative}, ""
	default: // mcq
		if answer.SelectedOption == nil {
			if answer.NumericValue != nil {
				return questionOutcome{}, "numeric answer submitted for an mcq question"
			}
			return questionOutcome{}, ""
		}
		if *answer.SelectedOption == q.CorrectOption {
			return questionOutcome{attempted: true, correct: true, awarded: marking.Positive}, ""
		}
		return questionOutcome{attempted: true, awarded: marking.Negative}, ""
	}
}

func (e *ScoringEngine) marking(q domain.Question) domain.MarkingScheme {
	if q.Marking != nil {
		return *q.Marking
	}
	return domain.MarkingScheme{Positive: e.defaults.Positive, Negative: e.defaults.Negative}
}

// percentage rounds to two decimals and guards the zero-total case.
func percentage(obtained, total float64) float64 {
	if total == 0 {
		return 0
	}
	return round2(obtained / total * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
