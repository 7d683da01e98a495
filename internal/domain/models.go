package domain

import "time"

// QuestionType distinguishes how an answer is judged.
type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionNumerical QuestionType = "numerical"
)

// DefaultNumericTolerance is the maximum deviation for a numerical answer to
// count as correct when the question does not carry its own tolerance.
// Submitted floats are never compared with bare equality.
const DefaultNumericTolerance = 0.01

// MarkingScheme holds the per-question positive and negative mark values.
// Questions without one fall back to the exam-wide defaults.
type MarkingScheme struct {
	Positive float64 `json:"positiveMarks"`
	Negative float64 `json:"negativeMarks"`
}

// Question is one entry of a test's published, immutable question bank.
type Question struct {
	Subject       string         `json:"subject"`
	Type          QuestionType   `json:"type"`
	Prompt        string         `json:"prompt,omitempty"`
	Options       []string       `json:"options,omitempty"`
	Marking       *MarkingScheme `json:"marking,omitempty"`
	CorrectOption int            `json:"correctOption,omitempty"`
	CorrectValue  float64        `json:"correctValue,omitempty"`
	Tolerance     float64        `json:"tolerance,omitempty"` // 0 means DefaultNumericTolerance
}

// Test is an ordered question bank; answers refer to questions by position.
type Test struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// Answer holds a student's response to the question at one position.
// Exactly one of SelectedOption (mcq) or NumericValue (numerical) is set;
// IsCorrect and MarksAwarded are derived by the scoring engine.
type Answer struct {
	SelectedOption *int     `json:"selectedOption,omitempty"`
	NumericValue   *float64 `json:"numericValue,omitempty"`
	IsCorrect      bool     `json:"isCorrect"`
	MarksAwarded   float64  `json:"marksAwarded"`
}

// AttemptStatus is the attempt lifecycle state.
type AttemptStatus string

const (
	AttemptInProgress    AttemptStatus = "in-progress"
	AttemptCompleted     AttemptStatus = "completed"
	AttemptAutoSubmitted AttemptStatus = "auto-submitted"
)

// Qualifies reports whether an attempt in this status counts for leaderboards.
func (s AttemptStatus) Qualifies() bool {
	return s == AttemptCompleted || s == AttemptAutoSubmitted
}

// SubmissionReason says why an attempt ended. The scoring engine only decides
// how the attempt is graded; the reason decides its terminal status.
type SubmissionReason string

const (
	SubmitManual         SubmissionReason = "manual"
	SubmitTimeExpired    SubmissionReason = "time-expired"
	SubmitConnectionLost SubmissionReason = "connection-lost"
)

// TerminalStatus maps a submission reason to the attempt's final status.
func (r SubmissionReason) TerminalStatus() (AttemptStatus, bool) {
	switch r {
	case SubmitManual:
		return AttemptCompleted, true
	case SubmitTimeExpired, SubmitConnectionLost:
		return AttemptAutoSubmitted, true
	default:
		return "", false
	}
}

// Score is the attempt-level outcome.
type Score struct {
	Obtained   float64 `json:"obtained"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

// SubjectScore aggregates marks and counts for one subject tag.
type SubjectScore struct {
	Subject     string  `json:"subject"`
	Score       float64 `json:"score"`
	Total       float64 `json:"total"`
	Percentage  float64 `json:"percentage"`
	Correct     int     `json:"correct"`
	Incorrect   int     `json:"incorrect"`
	Unattempted int     `json:"unattempted"`
}

// Analysis is the per-attempt breakdown written alongside the score.
type Analysis struct {
	Correct     int            `json:"correct"`
	Incorrect   int            `json:"incorrect"`
	Unattempted int            `json:"unattempted"`
	SubjectWise []SubjectScore `json:"subjectWise"`
}

// Attempt is one student's run at one test. Answers are keyed by question
// position; a missing key unambiguously means unattempted.
type Attempt struct {
	ID          string          `json:"id"`
	StudentID   string          `json:"studentId"`
	TestID      string          `json:"testId"`
	Status      AttemptStatus   `json:"status"`
	Answers     map[int]*Answer `json:"answers"`
	TimeSpent   int             `json:"timeSpent"` // seconds
	Score       Score           `json:"score"`
	Analysis    Analysis        `json:"analysis"`
	CreatedAt   time.Time       `json:"createdAt"`
	SubmittedAt time.Time       `json:"submittedAt,omitempty"`
}

// Clone returns a deep copy so stores can hand out attempts without sharing
// the answer map with callers.
func (a Attempt) Clone() Attempt {
	out := a
	if a.Answers != nil {
		out.Answers = make(map[int]*Answer, len(a.Answers))
		for pos, ans := range a.Answers {
			if ans == nil {
				out.Answers[pos] = nil
				continue
			}
			c := *ans
			out.Answers[pos] = &c
		}
	}
	if a.Analysis.SubjectWise != nil {
		out.Analysis.SubjectWise = append([]SubjectScore(nil), a.Analysis.SubjectWise...)
	}
	return out
}

// Anomaly records a per-question grading irregularity. Anomalies never abort
// scoring; the affected position is treated as unattempted.
type Anomaly struct {
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

// LeaderboardEntry is a derived, read-only projection of one ranked attempt.
type LeaderboardEntry struct {
	StudentID     string         `json:"studentId"`
	AttemptID     string         `json:"attemptId"`
	Rank          int            `json:"rank"`
	Score         float64        `json:"score"`
	Percentile    float64        `json:"percentile"`
	TimeSpent     int            `json:"timeSpent"`
	SubjectScores []SubjectScore `json:"subjectScores"`
	SubmittedAt   time.Time      `json:"submittedAt"`
}

// LeaderboardSnapshot is the cached ranked view of all qualifying attempts
// for one test. It is overwritten wholesale on every rebuild, never patched.
type LeaderboardSnapshot struct {
	TestID        string             `json:"testId"`
	Entries       []LeaderboardEntry `json:"entries"`
	TotalStudents int                `json:"totalStudents"`
	AverageScore  float64            `json:"averageScore"`
	TopScore      float64            `json:"topScore"`
	AverageTime   float64            `json:"averageTime"`
	LastUpdated   time.Time          `json:"lastUpdated"`
	IsStale       bool               `json:"isStale"`
}
