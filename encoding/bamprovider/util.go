package bamprovider

import (
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
)

// errorIterator yields no record. Err and Close return the error it was
// created with.
type errorIterator struct {
	err error
}

func (i *errorIterator) Scan() bool          { return false }
func (i *errorIterator) Record() *sam.Record { panic("errorIterator.Record: no record") }
func (i *errorIterator) Err() error          { return i.err }
func (i *errorIterator) Close() error        { return i.err }

// NewErrorIterator creates an Iterator that yields no record and returns "err"
// in Err and Close.
func NewErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// NewRefIterator creates an iterator for half-open range [refName:start,
// refName:limit). Start and limit are both base zero.  The iterator will yield
// reads whose aligned span overlaps the given range.  Start is clamped to 0.
//
// If refName is not in the header, the iterator's Err() satisfies
// errors.Is(errors.NotExist, err).
func NewRefIterator(p Provider, refName string, start, limit int) Iterator {
	h, err := p.GetHeader()
	if err != nil {
		return NewErrorIterator(err)
	}
	ref := RefByName(h, refName)
	if ref == nil {
		return NewErrorIterator(errors.E(errors.NotExist,
			fmt.Sprintf("bamprovider.NewRefIterator: reference '%s' not found", refName)))
	}
	if start < 0 {
		start = 0
	}
	if limit <= start {
		return NewErrorIterator(errors.E(errors.Invalid,
			fmt.Sprintf("bamprovider.NewRefIterator: empty range %s:%d-%d", refName, start, limit)))
	}
	return p.NewIterator(Region{Ref: ref, Start: start, End: limit})
}

// CountRegion returns the number of records overlapping [refName:start,
// refName:limit).
func CountRegion(p Provider, refName string, start, limit int) (int, error) {
	iter := NewRefIterator(p, refName, start, limit)
	n := 0
	for iter.Scan() {
		n++
	}
	return n, iter.Close()
}
