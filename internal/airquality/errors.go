package airquality

import "errors"

var (
	// ErrUpstreamFetch is returned when an upstream data source is unreachable or
	// keeps answering with a non-success status after all retries.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrDataQuality marks an empty or unusable batch. Not retried.
	ErrDataQuality = errors.New("data quality")
	// ErrNoProductionModel is returned when no registry version holds the production stage.
	ErrNoProductionModel = errors.New("no production model")
	// ErrSchemaMismatch is returned when the production model's input schema is absent or unusable.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrCandidateTraining marks a single candidate that failed to fit or evaluate.
	ErrCandidateTraining = errors.New("candidate training failed")
	// ErrNotFound is returned by stores and read services when nothing matches.
	ErrNotFound = errors.New("not found")
)

// Reason maps err onto a stable slug for logs and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUpstreamFetch):
		return "upstream_fetch"
	case errors.Is(err, ErrDataQuality):
		return "data_quality"
	case errors.Is(err, ErrNoProductionModel):
		return "no_production_model"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrCandidateTraining):
		return "candidate_training"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}
