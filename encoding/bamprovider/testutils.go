package bamprovider

import (
	"fmt"
	"io"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
)

// NewRecord creates a record for tests. seq may be empty; qualities are
// left unset.
func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference,
	cigar sam.Cigar, seq string, mapq byte) *sam.Record {
	r := &sam.Record{
		Name:    name,
		Ref:     ref,
		Pos:     pos,
		MapQ:    mapq,
		MatePos: matePos,
		MateRef: mateRef,
		Flags:   flags,
		Cigar:   cigar,
	}
	if seq != "" {
		r.Seq = sam.NewSeq([]byte(seq))
		r.Qual = []byte(strings.Repeat("I", len(seq)))
	}
	if ref != nil && mateRef != nil && ref.ID() == mateRef.ID() && flags&sam.ProperPair != 0 {
		end := r.End()
		if matePos > pos {
			r.TempLen = matePos + len(seq) - pos
		} else {
			r.TempLen = -(end - matePos)
		}
	}
	return r
}

// NewAux creates an aux field, panicking on error.
func NewAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

// WriteBAM writes recs to path and builds path+".bai". recs must be sorted by
// coordinate.
func WriteBAM(path string, header *sam.Header, recs []*sam.Record) (err error) {
	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	w, err := bam.NewWriter(out.Writer(ctx), header, 1)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err = w.Write(r); err != nil {
			return errors.E(err, "write", r.Name)
		}
	}
	if err = w.Close(); err != nil {
		return err
	}
	if err = out.Close(ctx); err != nil {
		return err
	}

	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close(ctx) // nolint: errcheck
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return err
	}
	var bai bam.Index
	for {
		r, rerr := br.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
		if err = bai.Add(r, br.LastChunk()); err != nil {
			return err
		}
	}
	idx, err := file.Create(ctx, path+".bai")
	if err != nil {
		return err
	}
	if err = bam.WriteIndex(idx.Writer(ctx), &bai); err != nil {
		return err
	}
	return idx.Close(ctx)
}
