package fasta

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

// File is a Fasta backed by an open file. Close must be called once the
// sequences are no longer needed.
type File struct {
	Fasta
	in file.File
}

// Close releases the underlying file, if any.
func (f *File) Close(ctx context.Context) error {
	if f.in == nil {
		return nil
	}
	err := f.in.Close(ctx)
	f.in = nil
	return err
}

// Open opens the FASTA file at path. If path+".fai" exists, sequences are
// read lazily through the index. Otherwise the whole file, optionally
// gzip-compressed, is loaded into memory.
func Open(ctx context.Context, path string) (*File, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "fasta.Open", path)
	}
	if fileio.DetermineType(path) != fileio.Gzip {
		if idx, ierr := file.Open(ctx, path+".fai"); ierr == nil {
			fa, err := NewIndexed(in.Reader(ctx), idx.Reader(ctx))
			if cerr := idx.Close(ctx); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				in.Close(ctx) // nolint: errcheck
				return nil, errors.E(err, "fasta.Open", path)
			}
			return &File{Fasta: fa, in: in}, nil
		}
	}
	defer in.Close(ctx) // nolint: errcheck
	var r io.Reader = in.Reader(ctx)
	if fileio.DetermineType(path) == fileio.Gzip {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.E(err, "fasta.Open", path)
		}
		defer gz.Close() // nolint: errcheck
		r = gz
	}
	fa, err := New(r)
	if err != nil {
		return nil, errors.E(err, "fasta.Open", path)
	}
	return &File{Fasta: fa}, nil
}
