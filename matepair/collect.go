// Package matepair gathers the reads overlapping a set of regions, together
// with their mates, from an alignment source.
package matepair

import (
	"context"
	"fmt"
	"time"

	"blainsmith.com/go/seahash"
	"github.com/biogo/hts/sam"
	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svevidence/encoding/bamprovider"
	"github.com/grailbio/svevidence/locus"
)

// ErrTooManyReads is returned when a collection exceeds Opts.MaxReads.
var ErrTooManyReads = errors.New("too many reads")

// IsTooManyReads reports whether err is, or wraps, ErrTooManyReads.
func IsTooManyReads(err error) bool {
	for err != nil {
		if err == ErrTooManyReads {
			return true
		}
		e, ok := err.(*errors.Error)
		if !ok {
			return false
		}
		err = e.Err
	}
	return false
}

// Result is the output of Collect.
type Result struct {
	// Reads holds every kept record, grouped by read name in lexical order.
	// Within a name, records appear in the order they were found.
	Reads []*sam.Record
	// SupplementaryFound is set when a supplementary alignment was skipped.
	SupplementaryFound bool
	// MissingMates is the number of paired read names for which only one
	// record was found.
	MissingMates int
}

// readSet holds the records of one read name.
type readSet struct {
	name string
	recs []*sam.Record
	// keys holds the seahash of the SAM text of each record in recs.
	keys map[uint64]struct{}
}

// Compare implements llrb.Comparable.
func (r *readSet) Compare(c llrb.Comparable) int {
	o := c.(*readSet).name
	switch {
	case r.name < o:
		return -1
	case r.name > o:
		return 1
	}
	return 0
}

func (r *readSet) maxMapq() int {
	max := 0
	for _, rec := range r.recs {
		if int(rec.MapQ) > max {
			max = int(rec.MapQ)
		}
	}
	return max
}

type collector struct {
	provider bamprovider.Provider
	opts     Opts
	byName   llrb.Tree
	nSeeded  int
	result   Result
}

func (c *collector) lookup(name string) *readSet {
	if v := c.byName.Get(&readSet{name: name}); v != nil {
		return v.(*readSet)
	}
	return nil
}

// add records rec under its name unless a byte-identical record is already
// present. It reports whether rec was added.
func (c *collector) add(rec *sam.Record) (bool, error) {
	text, err := rec.MarshalText()
	if err != nil {
		return false, errors.E(err, "matepair: format record", rec.Name)
	}
	key := seahash.Sum64(text)
	set := c.lookup(rec.Name)
	if set == nil {
		set = &readSet{name: rec.Name, keys: map[uint64]struct{}{}}
		c.byName.Insert(set)
	}
	if _, ok := set.keys[key]; ok {
		return false, nil
	}
	set.keys[key] = struct{}{}
	set.recs = append(set.recs, rec)
	return true, nil
}

func (c *collector) keep(rec *sam.Record) bool {
	if int(rec.MapQ) < c.opts.MinMapq || rec.Flags&(sam.Secondary|sam.Duplicate) != 0 {
		return false
	}
	if rec.Flags&sam.Supplementary != 0 && !c.opts.IncludeSupplementary {
		c.result.SupplementaryFound = true
		return false
	}
	return true
}

// loadRegion fetches [start, end) on chrom. Unless seed is set, records
// are only added for names that are already known.
func (c *collector) loadRegion(chrom string, start, end int, seed bool) ([]*sam.Record, error) {
	iter := bamprovider.NewRefIterator(c.provider, chrom, start, end)
	var (
		added []*sam.Record
		n     int
	)
	for iter.Scan() {
		n++
		rec := iter.Record()
		if !c.keep(rec) {
			continue
		}
		if !seed && c.lookup(rec.Name) == nil {
			continue
		}
		ok, err := c.add(rec)
		if err != nil {
			iter.Close() // nolint: errcheck
			return nil, err
		}
		if ok {
			added = append(added, rec)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, errors.E(err, fmt.Sprintf("matepair: fetch %s:%d-%d", chrom, start, end))
	}
	if c.opts.WarnReads > 0 && n > c.opts.WarnReads {
		log.Error.Printf("matepair: many reads in region %s:%d-%d: %d", chrom, start, end, n)
	}
	return added, nil
}

// checkVolume counts the records overlapping regions, before any of them is
// kept, and returns ErrTooManyReads once the total exceeds maxReads.
func checkVolume(provider bamprovider.Provider, regions []locus.Locus, maxReads int) error {
	total := 0
	for _, region := range regions {
		n, err := bamprovider.CountRegion(provider, region.Chrom, region.Start, region.End)
		if err != nil {
			return errors.E(err, fmt.Sprintf("matepair: count %s:%d-%d", region.Chrom, region.Start, region.End))
		}
		total += n
		if total > maxReads {
			log.Error.Printf("matepair: more than %d reads in %v", maxReads, regions)
			return ErrTooManyReads
		}
	}
	return nil
}

// Collect gathers the records overlapping regions and, unless
// opts.SingleEnded, the mates of those records. Regions are fetched as
// half-open [Start, End) ranges.
func Collect(ctx context.Context, provider bamprovider.Provider, regions []locus.Locus, opts Opts) (*Result, error) {
	if opts.MaxReads > 0 {
		if err := checkVolume(provider, regions, opts.MaxReads); err != nil {
			return nil, err
		}
	}
	c := &collector{provider: provider, opts: opts}
	var seeded []*sam.Record
	for _, region := range regions {
		added, err := c.loadRegion(region.Chrom, region.Start, region.End, true)
		if err != nil {
			return nil, err
		}
		seeded = append(seeded, added...)
		c.nSeeded += len(added)
	}
	if !opts.SingleEnded {
		log.Debug.Printf("matepair: to match: %d, min mapq: %d", len(seeded), opts.MinMapq)
		start := time.Now()
		for i, rec := range seeded {
			if i > 0 && i%1000 == 0 {
				log.Debug.Printf("matepair: matched %d/%d in %v", i, len(seeded), time.Since(start))
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if len(c.lookup(rec.Name).recs) >= 2 {
				continue
			}
			if rec.Flags&sam.Paired == 0 || rec.MateRef == nil || rec.MateRef.ID() < 0 {
				continue
			}
			if _, err := c.loadRegion(rec.MateRef.Name(), rec.MatePos, rec.MatePos+1, false); err != nil {
				return nil, err
			}
		}
	}
	c.byName.Do(func(v llrb.Comparable) (done bool) {
		set := v.(*readSet)
		if opts.PairMinMapq > 0 && set.maxMapq() < opts.PairMinMapq {
			return
		}
		if len(set.recs) < 2 && set.recs[0].Flags&sam.Paired != 0 {
			c.result.MissingMates++
		}
		c.result.Reads = append(c.result.Reads, set.recs...)
		return
	})
	log.Printf("matepair: %d reads, %d missing mates", len(c.result.Reads), c.result.MissingMates)
	return &c.result, nil
}

// GetReads calls Collect. If a region's chromosome is absent from the
// provider, it retries once with the "chr" prefix added or removed.
func GetReads(ctx context.Context, provider bamprovider.Provider, regions []locus.Locus, opts Opts) (*Result, error) {
	result, err := Collect(ctx, provider, regions, opts)
	if err == nil || !errors.Is(errors.NotExist, err) {
		return result, err
	}
	toggled := make([]locus.Locus, len(regions))
	for i, r := range regions {
		toggled[i] = r.WithChrom(locus.ToggleChrPrefix(r.Chrom))
	}
	log.Error.Printf("matepair: %v; retrying with %v", err, toggled)
	result, rerr := Collect(ctx, provider, toggled, opts)
	if rerr != nil {
		return nil, errors.E(rerr, fmt.Sprintf("matepair: also failed before chromosome renaming: %v", err))
	}
	return result, nil
}
