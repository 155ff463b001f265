package pageindex

// Options tunes every stage of structure extraction.
type Options struct {
	// TOCCheckPageNum is the maximum number of leading pages scanned for a TOC
	TOCCheckPageNum int

	// ChunkOverlapPages is how many pages a chunk re-includes from its predecessor
	ChunkOverlapPages int

	// BatchTokenLimit bounds the instruction plus items of one oracle batch
	BatchTokenLimit int

	// MaxConcurrency bounds oracle batches in flight
	MaxConcurrency int

	// OffsetSamplePages is the size of the page window used to calibrate TOC page numbers
	OffsetSamplePages int

	// VerifySampleSize caps how many items the verifier checks
	VerifySampleSize int

	// AccuracyThreshold is the sampled accuracy below which repair is attempted
	AccuracyThreshold float64

	// MaxFixAttempts bounds repair rounds
	MaxFixAttempts int

	// RepairWindow is the page radius searched around a wrong location
	RepairWindow int

	// MaxPageNumEachNode is the page threshold for splitting large nodes
	MaxPageNumEachNode int

	// MaxTokenNumEachNode is both the chunk budget and the token threshold for splitting large nodes
	MaxTokenNumEachNode int

	// SummaryTokenThreshold is the size below which node text is its own summary
	SummaryTokenThreshold int

	IfAddNodeID         bool
	IfAddNodeText       bool
	IfAddNodeSummary    bool
	IfAddDocDescription bool

	// Seed fixes verifier sampling; zero draws a random seed
	Seed uint64
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		TOCCheckPageNum:       20,
		ChunkOverlapPages:     1,
		BatchTokenLimit:       60000,
		MaxConcurrency:        8,
		OffsetSamplePages:     20,
		VerifySampleSize:      20,
		AccuracyThreshold:     0.6,
		MaxFixAttempts:        3,
		RepairWindow:          10,
		MaxPageNumEachNode:    10,
		MaxTokenNumEachNode:   20000,
		SummaryTokenThreshold: 200,
		IfAddNodeID:           true,
	}
}

// Strategy names an extraction algorithm.
type Strategy string

const (
	StrategyTOCWithPages Strategy = "toc_with_pages"
	StrategyTOCNoPages   Strategy = "toc_no_pages"
	StrategyNoTOC        Strategy = "no_toc"
)

const (
	confidenceTOCWithPages = 0.9
	confidenceTOCNoPages   = 0.7
	confidenceNoTOC        = 0.6
	confidenceFallback     = 0.5
)

// SelectStrategy picks the strategy matching the TOC state.
func SelectStrategy(toc TocInfo) Strategy {
	switch {
	case toc.Found && toc.HasPageNumbers:
		return StrategyTOCWithPages
	case toc.Found:
		return StrategyTOCNoPages
	default:
		return StrategyNoTOC
	}
}

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyTOCWithPages, StrategyTOCNoPages, StrategyNoTOC:
		return true
	}
	return false
}

// Precondition returns a *StrategyPreconditionError when toc does not
// allow s.
func (s Strategy) Precondition(toc TocInfo) error {
	switch s {
	case StrategyTOCWithPages:
		if !toc.Found {
			return &StrategyPreconditionError{Strategy: s, Reason: "no table of contents found"}
		}
		if !toc.HasPageNumbers {
			return &StrategyPreconditionError{Strategy: s, Reason: "table of contents has no page numbers"}
		}
	case StrategyTOCNoPages:
		if !toc.Found {
			return &StrategyPreconditionError{Strategy: s, Reason: "no table of contents found"}
		}
	case StrategyNoTOC:
	default:
		return &StrategyPreconditionError{Strategy: s, Reason: "unknown strategy"}
	}
	return nil
}

// Confidence is the prior confidence of a strategy's output. A no_toc run
// reached by fallback scores lower than a direct one.
func (s Strategy) Confidence(fallback bool) float64 {
	switch s {
	case StrategyTOCWithPages:
		return confidenceTOCWithPages
	case StrategyTOCNoPages:
		return confidenceTOCNoPages
	}
	if fallback {
		return confidenceFallback
	}
	return confidenceNoTOC
}
