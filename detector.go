package tradewatch

import "context"

// DetectionStatus classifies what the update detector found
type DetectionStatus string

const (
	StatusUpdateFound DetectionStatus = "UPDATE_FOUND"
	StatusNoUpdate    DetectionStatus = "NO_UPDATE"
	StatusError       DetectionStatus = "ERROR"
)

// Source is a reference backing a detected update
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Detection is the detector's answer for one identifier. Exactly one of
// the three statuses applies:
//
//   - StatusUpdateFound: Summary non-empty, at least one Source
//   - StatusNoUpdate: no Summary, no Sources
//   - StatusError: ErrorMessage set
type Detection struct {
	Status       DetectionStatus
	Summary      string
	Sources      []Source
	ErrorMessage string
}

// UpdateDetector asks an upstream capability (an LLM with web search in
// production) whether anything new and material changed for a trade
// identifier since the last run.
//
// Implementations classify transport failures into the detector error
// kinds: ErrDetectorTimeout and ErrDetectorRateLimited are retried by
// the worker; ErrDetectorMalformed and ErrDetectorInternal surface
// immediately. The engine never inspects the summary text beyond
// checking it is non-empty.
type UpdateDetector interface {
	Detect(ctx context.Context, targetValue string) (Detection, error)
}
