package fasta

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// indexEntry is one line of a *.fai file: "<sequence name>\t<length>\t<byte
// offset>\t<bases per line>\t<bytes per line>".  For example:
// "chr3\t12345\t9000\t80\t81".
type indexEntry struct {
	length    uint64
	offset    uint64
	lineBase  uint64
	lineWidth uint64
}

type indexedFasta struct {
	seqs     map[string]indexEntry
	seqNames []string // returned by SeqNames()

	mu        sync.Mutex
	reader    io.ReadSeeker
	bufOff    int64
	buf       []byte // caches file contents starting at bufOff.
	resultBuf []byte // temp for concatenating multi-line sequences.
}

func parseIndexLine(line string) (string, indexEntry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return "", indexEntry{}, errors.Errorf("invalid index line: %s", line)
	}
	var (
		ent  indexEntry
		vals [4]uint64
	)
	for i := range vals {
		v, err := strconv.ParseUint(fields[i+1], 10, 64)
		if err != nil {
			return "", ent, errors.Wrapf(err, "invalid index line: %s", line)
		}
		vals[i] = v
	}
	ent.length, ent.offset, ent.lineBase, ent.lineWidth = vals[0], vals[1], vals[2], vals[3]
	if ent.lineBase == 0 || ent.lineWidth < ent.lineBase {
		return "", ent, errors.Errorf("invalid line geometry in index line: %s", line)
	}
	return fields[0], ent, nil
}

// NewIndexed creates a new Fasta that can perform efficient random lookups
// using the provided index, without reading the data into memory.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	f := &indexedFasta{seqs: make(map[string]indexEntry), reader: fasta}
	scanner := bufio.NewScanner(index)
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		name, ent, err := parseIndexLine(scanner.Text())
		if err != nil {
			return nil, err
		}
		f.seqs[name] = ent
		f.seqNames = append(f.seqNames, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA index")
	}
	sort.SliceStable(f.seqNames, func(i, j int) bool {
		return f.seqs[f.seqNames[i]].offset < f.seqs[f.seqNames[j]].offset
	})
	return f, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	ent, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found in index: %s", seqName)
	}
	return ent.length, nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}

func resizeBuf(buf *[]byte, n int) {
	if cap(*buf) < n {
		*buf = make([]byte, n)
	} else {
		*buf = (*buf)[:n]
	}
}

// read returns the range [off, off+n) of the underlying file. REQUIRES: f.mu
// is held.
func (f *indexedFasta) read(off int64, n int) ([]byte, error) {
	limit := off + int64(n)
	if off >= f.bufOff && limit <= f.bufOff+int64(len(f.buf)) {
		return f.buf[off-f.bufOff : limit-f.bufOff], nil
	}
	if _, err := f.reader.Seek(off, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "failed to seek to offset %d", off)
	}
	bufSize := 8192
	if bufSize < n {
		bufSize = n
	}
	resizeBuf(&f.buf, bufSize)
	bytesRead, err := io.ReadFull(f.reader, f.buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if bytesRead < n {
		return nil, errors.Errorf("encountered unexpected end of file (bad index? file doesn't end in newline?)")
	}
	f.bufOff = off
	f.buf = f.buf[:bytesRead]
	return f.buf[:n], nil
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	ent, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found in index: %s", seqName)
	}
	if end > ent.length {
		return "", errors.Errorf("end is past end of sequence %s: %d", seqName, ent.length)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Each line carries lineBase bases followed by (lineWidth-lineBase)
	// newline bytes.
	newlineBytes := ent.lineWidth - ent.lineBase
	offset := ent.offset + start + newlineBytes*(start/ent.lineBase)
	firstLineBases := ent.lineBase - start%ent.lineBase
	var newlines uint64
	if end-start > firstLineBases {
		newlines = 1 + (end-start-firstLineBases)/ent.lineBase
	}
	raw, err := f.read(int64(offset), int(end-start+newlines*newlineBytes))
	if err != nil {
		return "", err
	}

	resizeBuf(&f.resultBuf, int(end-start))
	linePos := (offset - ent.offset) % ent.lineWidth
	n := 0
	for _, b := range raw {
		if linePos < ent.lineBase {
			f.resultBuf[n] = b
			n++
		}
		if linePos++; linePos == ent.lineWidth {
			linePos = 0
		}
	}
	return string(f.resultBuf[:n]), nil
}
