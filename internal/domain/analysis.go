package domain

// Analysis kinds accepted on TopicAnalysisRequested.
const (
	AnalysisMostProductive = "mostProductiveSeller"
	AnalysisBelowThreshold = "sellersBelowThreshold"
	AnalysisBestPeriod     = "bestPeriod"
)

// Analysis job statuses.
const (
	AnalysisPending   = "pending"
	AnalysisCompleted = "completed"
	AnalysisFailed    = "failed"
)

// AnalysisRequest asks the worker to run one analysis. Only the fields
// relevant to Kind are read.
type AnalysisRequest struct {
	JobID string `json:"jobId"`
	Kind  string `json:"kind"`

	StartDate string  `json:"startDate,omitempty"`
	EndDate   string  `json:"endDate,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Page      int64   `json:"page,omitempty"`
	Size      int64   `json:"size,omitempty"`

	SellerID       string `json:"sellerId,omitempty"`
	DurationInDays int64  `json:"durationInDays,omitempty"`
}

// AnalysisResult is published on TopicAnalysisCompleted.
type AnalysisResult struct {
	JobID      string        `json:"jobId"`
	Kind       string        `json:"kind"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"errorKind,omitempty"`
	Seller     *Seller       `json:"seller,omitempty"`
	Sellers    *Page[Seller] `json:"sellers,omitempty"`
	Period     *Period       `json:"period,omitempty"`
	DurationMs int64         `json:"durationMs"`
}
