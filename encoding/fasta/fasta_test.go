package fasta_test

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svevidence/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

const (
	fastaData  = ">seq1\n" + "ACGTA\nCGTAC\nGT\n" + ">seq2 A viral sequence\n" + "ACGT\n" + "ACGT\n"
	fastaIndex = "seq1\t12\t6\t5\t6\n" + "seq2\t8\t44\t4\t5\n"
)

func sources(t *testing.T) map[string]fasta.Fasta {
	unindexed, err := fasta.New(strings.NewReader(fastaData))
	assert.NoError(t, err)
	indexed, err := fasta.NewIndexed(strings.NewReader(fastaData), strings.NewReader(fastaIndex))
	assert.NoError(t, err)
	return map[string]fasta.Fasta{"unindexed": unindexed, "indexed": indexed}
}

func TestGet(t *testing.T) {
	tests := []struct {
		seq      string
		start    uint64
		end      uint64
		want     string
		wantsErr bool
	}{
		{"seq1", 1, 2, "C", false},
		{"seq1", 1, 6, "CGTAC", false},
		{"seq1", 0, 12, "ACGTACGTACGT", false},
		{"seq1", 10, 12, "GT", false},
		{"seq2", 0, 8, "ACGTACGT", false},
		{"seq2", 2, 5, "GTA", false},
		{"seq0", 0, 1, "", true},
		{"seq1", 10, 13, "", true},
		{"seq1", 4, 3, "", true},
	}
	for name, fa := range sources(t) {
		for _, tt := range tests {
			got, err := fa.Get(tt.seq, tt.start, tt.end)
			expect.EQ(t, err != nil, tt.wantsErr, "%s: %+v: %v", name, tt, err)
			expect.EQ(t, got, tt.want, "%s: %+v", name, tt)
		}
	}
}

func TestLen(t *testing.T) {
	for name, fa := range sources(t) {
		n, err := fa.Len("seq1")
		assert.NoError(t, err)
		expect.EQ(t, n, uint64(12), name)
		n, err = fa.Len("seq2")
		assert.NoError(t, err)
		expect.EQ(t, n, uint64(8), name)
		_, err = fa.Len("seq0")
		expect.NotNil(t, err, name)
		expect.EQ(t, fa.SeqNames(), []string{"seq1", "seq2"}, name)
	}
}

func TestNewFromSeqs(t *testing.T) {
	fa := fasta.NewFromSeqs(map[string]string{"insertion": "ACGTTT", "a": "GG"})
	expect.EQ(t, fa.SeqNames(), []string{"a", "insertion"})
	s, err := fa.Get("insertion", 2, 6)
	assert.NoError(t, err)
	expect.EQ(t, s, "GTTT")
}

func TestMalformed(t *testing.T) {
	_, err := fasta.New(strings.NewReader("ACGT\n>seq\nAC\n"))
	expect.NotNil(t, err)
	_, err = fasta.NewIndexed(strings.NewReader(fastaData), strings.NewReader("seq1\tx\t6\t5\t6\n"))
	expect.NotNil(t, err)
}

func TestGenerateIndex(t *testing.T) {
	generateIndex := func(fa string) (faidx string) {
		idx := bytes.Buffer{}
		assert.NoError(t, fasta.GenerateIndex(&idx, strings.NewReader(fa)))
		return idx.String()
	}

	fa := `>E0
GGTGAAATC
CCTGAAATC
AAAATTGCT
>E1
GTCCCTCCCCAGACATGGCCCTGGGAGGC
>E2
CCGCGCCCGCGCCCCCGCCGCC
`
	fai := generateIndex(fa)
	assert.EQ(t, fai, `E0	27	4	9	10
E1	29	38	29	30
E2	22	72	22	23
`)
	indexed, err := fasta.NewIndexed(strings.NewReader(fa), strings.NewReader(fai))
	assert.NoError(t, err)
	seq, err := indexed.Get("E0", 7, 20)
	assert.NoError(t, err)
	assert.EQ(t, seq, "TCCCTGAAATCAA")

	// MS-DOS newlines.
	assert.EQ(t, generateIndex(">E0\r\nGGGG\r\n>E1\r\nAAAAA\r\n"),
		`E0	4	5	4	6
E1	5	16	5	7
`)
	// No newline at the end.
	assert.EQ(t, generateIndex(">E0\nGGGG\n>E1\nCCCCC\nAAAAA"),
		`E0	4	4	4	5
E1	10	13	5	6
`)

	idx := bytes.Buffer{}
	assert.Regexp(t, fasta.GenerateIndex(&idx, strings.NewReader("")), "empty FASTA")
}

func TestOpen(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	plain := filepath.Join(dir, "ref.fa")
	assert.NoError(t, ioutil.WriteFile(plain, []byte(fastaData), 0600))
	assert.NoError(t, ioutil.WriteFile(plain+".fai", []byte(fastaIndex), 0600))

	var gzData bytes.Buffer
	w := gzip.NewWriter(&gzData)
	_, err := w.Write([]byte(fastaData))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	gz := filepath.Join(dir, "ref.fa.gz")
	assert.NoError(t, ioutil.WriteFile(gz, gzData.Bytes(), 0600))

	for _, path := range []string{plain, gz} {
		f, err := fasta.Open(ctx, path)
		assert.NoError(t, err)
		s, err := f.Get("seq1", 3, 8)
		assert.NoError(t, err)
		expect.EQ(t, s, "TACGT", path)
		assert.NoError(t, f.Close(ctx))
	}

	_, err = fasta.Open(ctx, filepath.Join(dir, "missing.fa"))
	expect.NotNil(t, err)
}
