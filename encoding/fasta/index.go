package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// indexBuilder accumulates the *.fai fields of the sequence being scanned.
type indexBuilder struct {
	out       *tsv.Writer
	name      string
	offset    int64
	bases     int
	lineBases int
	lineWidth int
}

func (b *indexBuilder) start(name string, offset int64) {
	*b = indexBuilder{out: b.out, name: name, offset: offset}
}

func (b *indexBuilder) addLine(fullLen, bases int) {
	if b.lineWidth == 0 {
		b.lineWidth = fullLen
		b.lineBases = bases
	}
	b.bases += bases
}

func (b *indexBuilder) flush() error {
	b.out.WriteString(b.name)
	b.out.WriteInt64(int64(b.bases))
	b.out.WriteInt64(b.offset)
	b.out.WriteInt64(int64(b.lineBases))
	b.out.WriteInt64(int64(b.lineWidth))
	return b.out.EndLine()
}

// GenerateIndex generates an index (*.fai) from FASTA.  The index can be later
// passed to NewIndexed() to random-access the FASTA file quickly, and Open
// picks it up automatically when it is stored next to the FASTA file as
// path+".fai".
//
// The index format is defined by "samtool faidx"
// (http://www.htslib.org/doc/faidx.html).
func GenerateIndex(out io.Writer, in io.Reader) error {
	var (
		b       = indexBuilder{out: tsv.NewWriter(out)}
		r       = bufio.NewReader(in)
		cumByte int64
		inSeq   bool
	)
	for {
		fullLine, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		eof := err == io.EOF
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		switch {
		case len(line) == 0:
		case line[0] == '>':
			if inSeq {
				if err := b.flush(); err != nil {
					return err
				}
			}
			b.start(string(bytes.SplitN(line[1:], []byte(" "), 2)[0]), cumByte)
			inSeq = true
		case !inSeq:
			return errors.E("malformed FASTA file")
		default:
			b.addLine(len(fullLine), len(line))
		}
		if eof {
			break
		}
	}
	if cumByte == 0 {
		return errors.E("empty FASTA file")
	}
	if inSeq {
		if err := b.flush(); err != nil {
			return err
		}
	}
	return b.out.Flush()
}
