package domain

// ProcessingStatus is the per-resume pipeline state.
type ProcessingStatus string

const (
	StatusUnprocessed ProcessingStatus = "UNPROCESSED"
	StatusParsing     ProcessingStatus = "PARSING"
	StatusChunking    ProcessingStatus = "CHUNKING"
	StatusEmbedding   ProcessingStatus = "EMBEDDING"
	StatusProcessed   ProcessingStatus = "PROCESSED"
	StatusFailed      ProcessingStatus = "FAILED"
)

// AllStatuses lists every status in pipeline order, FAILED last.
var AllStatuses = []ProcessingStatus{
	StatusUnprocessed,
	StatusParsing,
	StatusChunking,
	StatusEmbedding,
	StatusProcessed,
	StatusFailed,
}

// transitions maps a target status to the statuses it may be entered from.
// A fresh parse may start from anywhere, which is how FAILED and PROCESSED
// documents get re-processed.
var transitions = map[ProcessingStatus][]ProcessingStatus{
	StatusParsing:   AllStatuses,
	StatusChunking:  {StatusParsing, StatusFailed},
	StatusEmbedding: {StatusChunking, StatusFailed},
	StatusProcessed: {StatusChunking, StatusEmbedding, StatusFailed},
	StatusFailed:    {StatusParsing, StatusChunking, StatusEmbedding},
}

// AllowedFrom returns the statuses from which to may be entered.
func AllowedFrom(to ProcessingStatus) []ProcessingStatus {
	return transitions[to]
}

// CanTransition reports whether a document in from may move to to.
func (from ProcessingStatus) CanTransition(to ProcessingStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s ProcessingStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}
