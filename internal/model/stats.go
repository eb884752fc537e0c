package model

// Stats describes the content of the data directory as seen through the
// current outcome of every candidate.
type Stats struct {
	// Records is the number of ledger rows, corrections included.
	Records int `json:"records"`

	// Candidates is the number of distinct candidates with an outcome.
	Candidates int `json:"candidates"`

	// Images is the number of accepted images.
	Images int `json:"images"`

	// TotalBytes is the combined size of accepted images.
	TotalBytes int64 `json:"total_bytes"`

	AverageWidth  float64 `json:"average_width"`
	AverageHeight float64 `json:"average_height"`

	ByStatus map[Status]int `json:"by_status"`
	BySource map[string]int `json:"by_source"`
	ByFormat map[string]int `json:"by_format"`
	ByDomain map[string]int `json:"by_domain"`

	// Pairs counts checkpoints per pair status.
	Pairs map[PairStatus]int `json:"pairs"`
}

// NewStats returns Stats with every map allocated.
func NewStats() *Stats {
	return &Stats{
		ByStatus: make(map[Status]int),
		BySource: make(map[string]int),
		ByFormat: make(map[string]int),
		ByDomain: make(map[string]int),
		Pairs:    make(map[PairStatus]int),
	}
}
