package interval

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// PosType is BEDUnion's coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// Entry represents a single interval, with 0-based half-open coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// BEDUnion is a per-chromosome collection of length-2N endpoint sequences:
// the start of interval #k is in element [2k], its end in element [2k+1], and
// the intervals are disjoint and stored in increasing order.
//
// Queries cache the last chromosome and index, so a BEDUnion must not be
// shared across goroutines; use Clone instead.
type BEDUnion struct {
	nameMap map[string][]PosType

	lastChrName      string
	lastChrIntervals []PosType
	lastPosPlus1     PosType
	lastIdx          int
	// isSequential is true if all queries since the last chromosome change have
	// been in order of nondecreasing position.
	isSequential bool
}

// searchPosType is sort.SearchInts for PosType.
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// fwdsearchPosType checks a[idx], then a[idx + 1], then a[idx + 3], then
// a[idx + 7], etc., and then uses binary search to finish the job.
func fwdsearchPosType(a []PosType, x PosType, idx int) int {
	nextIncr := 1
	startIdx := idx
	endIdx := len(a)
	for idx < endIdx {
		if a[idx] >= x {
			endIdx = idx
			break
		}
		startIdx = idx + 1
		idx += nextIncr
		nextIncr *= 2
	}
	for startIdx < endIdx {
		midIdx := int(uint(startIdx+endIdx) >> 1)
		if a[midIdx] >= x {
			endIdx = midIdx
		} else {
			startIdx = midIdx + 1
		}
	}
	return startIdx
}

// ContainsByName checks whether the (0-based) position pos on chrName lies
// within the union.
func (u *BEDUnion) ContainsByName(chrName string, pos PosType) bool {
	posPlus1 := pos + 1
	if chrName != u.lastChrName || u.lastChrIntervals == nil {
		u.lastChrName = chrName
		u.lastChrIntervals = u.nameMap[chrName]
		if u.lastChrIntervals == nil {
			return false
		}
		u.lastIdx = searchPosType(u.lastChrIntervals, posPlus1)
		u.lastPosPlus1 = posPlus1
		u.isSequential = true
		return u.lastIdx&1 == 1
	}
	if u.isSequential {
		if posPlus1 >= u.lastPosPlus1 {
			u.lastIdx = fwdsearchPosType(u.lastChrIntervals, posPlus1, u.lastIdx)
			u.lastPosPlus1 = posPlus1
			return u.lastIdx&1 == 1
		}
		u.isSequential = false
	}
	return searchPosType(u.lastChrIntervals, posPlus1)&1 == 1
}

// NBases returns the total number of bases covered by the union.
func (u *BEDUnion) NBases() int {
	n := 0
	for _, intervals := range u.nameMap {
		for i := 0; i < len(intervals); i += 2 {
			n += int(intervals[i+1] - intervals[i])
		}
	}
	return n
}

// Clone returns a new BEDUnion which shares the interval set, but has its own
// search state.
func (u *BEDUnion) Clone() *BEDUnion {
	return &BEDUnion{nameMap: u.nameMap}
}

// NewBEDUnionFromEntries builds a union from entries in any order. Empty
// entries are dropped; overlapping and touching entries are merged.
func NewBEDUnionFromEntries(entries []Entry) (*BEDUnion, error) {
	byChr := map[string][]Entry{}
	for _, e := range entries {
		if e.Start0 < 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("interval: negative start coordinate in %s:%d-%d", e.ChrName, e.Start0, e.End))
		}
		if e.End < e.Start0 || e.End >= posTypeMax {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("interval: invalid coordinate pair [%d, %d)", e.Start0, e.End))
		}
		if e.End == e.Start0 {
			continue
		}
		byChr[e.ChrName] = append(byChr[e.ChrName], e)
	}
	u := &BEDUnion{nameMap: make(map[string][]PosType, len(byChr))}
	for chr, chrEntries := range byChr {
		sort.Slice(chrEntries, func(i, j int) bool { return chrEntries[i].Start0 < chrEntries[j].Start0 })
		var endpoints []PosType
		prevStart, prevEnd := chrEntries[0].Start0, chrEntries[0].End
		for _, e := range chrEntries[1:] {
			if e.Start0 > prevEnd {
				endpoints = append(endpoints, prevStart, prevEnd)
				prevStart, prevEnd = e.Start0, e.End
				continue
			}
			if e.End > prevEnd {
				prevEnd = e.End
			}
		}
		u.nameMap[chr] = append(endpoints, prevStart, prevEnd)
	}
	return u, nil
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

func isBEDHeader(line []byte) bool {
	s := gunsafe.BytesToString(line)
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "track") || strings.HasPrefix(s, "browser")
}

// NewBEDUnion loads the first three columns of every line of a BED file.
// The input need not be sorted.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (*BEDUnion, error) {
	var startSubtract int
	if opts.OneBasedInput {
		startSubtract = 1
	}
	var (
		tokens  [3][]byte
		entries []Entry
		lineIdx int
	)
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if isBEDHeader(curLine) {
			continue
		}
		nToken := getTokens(tokens[:], curLine)
		if nToken != 3 {
			if nToken == 0 {
				continue
			}
			return nil, errors.E(errors.Invalid, fmt.Sprintf("interval: BED line %d has fewer tokens than expected", lineIdx))
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("interval: BED line %d", lineIdx))
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("interval: BED line %d", lineIdx))
		}
		start -= startSubtract
		if start < 0 || end < start || end >= posTypeMax {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("interval: invalid coordinate pair on BED line %d", lineIdx))
		}
		entries = append(entries, Entry{
			ChrName: string(tokens[0]),
			Start0:  PosType(start),
			End:     PosType(end),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	u, err := NewBEDUnionFromEntries(entries)
	if err != nil {
		return nil, err
	}
	log.Printf("BED loaded, %d base(s) covered", u.NBases())
	return u, nil
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader. Gzipped files are detected by extension.
func NewBEDUnionFromPath(path string, opts NewBEDOpts) (u *BEDUnion, err error) {
	ctx := vcontext.Background()
	infile, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		gz, gerr := gzip.NewReader(reader)
		if gerr != nil {
			return nil, errors.E(gerr, "interval: open", path)
		}
		defer gz.Close() // nolint: errcheck
		reader = gz
	}
	return NewBEDUnion(reader, opts)
}
