// Package bamprovider provides region-bounded access to coordinate-sorted,
// indexed BAM files.
//
// The Provider is an interface for reading records that overlap a genomic
// region. Multiple iterators may be open on one Provider at the same time;
// the BAM implementation recycles their readers through a free list.
package bamprovider
