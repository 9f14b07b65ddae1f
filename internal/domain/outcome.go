package domain

// MatchOutcome records one scoring pass over one link for analytics.
// Written best-effort; a failed write never affects the scored row.
type MatchOutcome struct {
	Signature       string
	Attempt         int
	Score           float64
	ExactMatch      float64 // signal contributions as applied, pre-clamp
	CounterpartHist float64
	SimilarAmount   float64
	TimeWindow      float64
	Outcome         string // linked, manual_review, ignored, pending
	CandidateUserID *string
	ProcessedAt     int64 // unix milliseconds
}
