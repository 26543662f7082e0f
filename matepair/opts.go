package matepair

// Opts controls read collection.
type Opts struct {
	// MinMapq is the minimum mapping quality of a collected record.
	MinMapq int
	// PairMinMapq, if positive, drops read names none of whose records reach
	// this mapping quality.
	PairMinMapq int
	// SingleEnded disables mate following.
	SingleEnded bool
	// IncludeSupplementary keeps supplementary (0x800) alignments.
	IncludeSupplementary bool
	// WarnReads is the number of records in a single region fetch above which
	// a warning is logged.
	WarnReads int
	// MaxReads, if positive, aborts collection with ErrTooManyReads when the
	// regions hold more records than this. Records are counted before
	// filtering, so nothing is fetched for an oversized region.
	MaxReads int
}

// DefaultOpts sets the default values for Opts.
var DefaultOpts = Opts{
	MinMapq:   0,
	WarnReads: 100000,
}
