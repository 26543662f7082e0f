package main

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svevidence/encoding/bamprovider"
	"github.com/grailbio/svevidence/encoding/fasta"
	"github.com/grailbio/svevidence/evidence"
	"github.com/grailbio/svevidence/variant"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSeq(n int, seed uint32) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		seed = seed*1664525 + 1013904223
		sb.WriteByte("ACGT"[seed>>30])
	}
	return sb.String()
}

func writeFasta(t *testing.T, path, name, seq string) {
	var sb strings.Builder
	sb.WriteString(">" + name + "\n")
	for i := 0; i < len(seq); i += 60 {
		end := i + 60
		if end > len(seq) {
			end = len(seq)
		}
		sb.WriteString(seq[i:end] + "\n")
	}
	require.NoError(t, ioutil.WriteFile(path, []byte(sb.String()), 0600))
}

func TestEvidenceCommand(t *testing.T) {
	tmp, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	chr1 := randomSeq(2000, 5)
	faPath := filepath.Join(tmp, "genome.fa")
	writeFasta(t, faPath, "chr1", chr1)
	require.NoError(t, newApp().Run([]string{"bio-sv-evidence", "faidx", faPath}))
	fai, err := ioutil.ReadFile(faPath + ".fai")
	require.NoError(t, err)
	assert.Equal(t, "chr1\t2000\t6\t60\t61\n", string(fai))

	ref, err := sam.NewReference("chr1", "", "", len(chr1), nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)
	m80 := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 80)}
	bamPath := filepath.Join(tmp, "sample.bam")
	recs := []*sam.Record{
		bamprovider.NewRecord("junction", ref, 960, 0, -1, nil, m80, chr1[960:1000]+chr1[1020:1060], 60),
		bamprovider.NewRecord("spanning", ref, 970, 0, -1, nil, m80, chr1[970:1050], 60),
	}
	require.NoError(t, bamprovider.WriteBAM(bamPath, header, recs))

	variantsPath := filepath.Join(tmp, "variants.txt")
	require.NoError(t, ioutil.WriteFile(variantsPath, []byte("# type breakpoints\ndel chr1 1001 1020\n\ninv chr1 901 1100\n"), 0600))
	summaryPath := filepath.Join(tmp, "summary.tsv")
	require.NoError(t, newApp().Run([]string{"bio-sv-evidence", "evidence",
		"--ref", faPath, "--bam", bamPath, "--align-dist", "40", "--processes", "1",
		"--variants", variantsPath, "--summary", summaryPath}))

	summary, err := ioutil.ReadFile(summaryPath)
	require.NoError(t, err)
	lines := strings.Split(string(summary), "\n")
	var deletionCounts []string
	for _, line := range lines {
		if strings.HasPrefix(line, "Deletion::") && strings.Contains(line, "\tsample\t") && strings.Contains(line, "\tcount\t") {
			deletionCounts = append(deletionCounts, line[strings.Index(line, "\tsample\t")+1:])
		}
	}
	assert.Equal(t, []string{"sample\talt\tcount\t1", "sample\tref\tcount\t1", "sample\tamb\tcount\t0"}, deletionCounts)
	assert.Contains(t, string(summary), "Inversion::")

	// Several samples are opened concurrently and share one exclusion mask.
	otherPath := filepath.Join(tmp, "other.bam")
	require.NoError(t, bamprovider.WriteBAM(otherPath, header, recs))
	bedPath := filepath.Join(tmp, "exclude.bed")
	require.NoError(t, ioutil.WriteFile(bedPath, []byte("chr1\t0\t100\n"), 0600))
	require.NoError(t, newApp().Run([]string{"bio-sv-evidence", "evidence",
		"--ref", faPath, "--bam", bamPath, "--bam", otherPath, "--exclude-bed", bedPath,
		"--align-dist", "40", "--processes", "1", "--summary", summaryPath, "del", "chr1", "1001", "1020"}))
	summary, err = ioutil.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "\tsample\talt\tcount\t1\n")
	assert.Contains(t, string(summary), "\tother\talt\tcount\t1\n")

	err = newApp().Run([]string{"bio-sv-evidence", "evidence", "--ref", faPath, "--bam", bamPath, "dup", "chr1", "1", "2"})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)

	err = newApp().Run([]string{"bio-sv-evidence", "evidence", "--ref", faPath, "--bam", bamPath, "--preset", "nanopore", "del", "chr1", "1001", "1020"})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestReadVariantArgs(t *testing.T) {
	tmp, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmp, "variants.txt")
	require.NoError(t, ioutil.WriteFile(path, []byte("del 1 100 200\n#ins 1 5 ACGT\n  \ninv\tchr2 10 20\n"), 0600))
	specs, err := readVariantArgs(testContext(), path)
	require.NoError(t, err)
	assert.Equal(t, []variantArgs{
		{typ: "del", args: []string{"1", "100", "200"}},
		{typ: "inv", args: []string{"chr2", "10", "20"}},
	}, specs)
}

func testContext() context.Context { return vcontext.Background() }

func TestPrintAlignments(t *testing.T) {
	ctx := context.Background()
	chr1 := randomSeq(2000, 5)
	ref, err := sam.NewReference("chr1", "", "", len(chr1), nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)
	m80 := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 80)}
	provider := bamprovider.NewFakeProvider(header, []*sam.Record{
		bamprovider.NewRecord("junction", ref, 960, 0, -1, nil, m80, chr1[960:1000]+chr1[1020:1060], 60),
	})
	opts := evidence.DefaultOpts
	opts.AlignDistance = 40
	opts.Processes = 1
	sample, err := evidence.NewSample(ctx, "s1", provider, opts, nil)
	require.NoError(t, err)
	genome := fasta.NewFromSeqs(map[string]string{"chr1": chr1})
	v, err := variant.Parse("del", []string{"chr1", "1001", "1020"}, 40, genome, nil)
	require.NoError(t, err)
	result, err := evidence.Run(ctx, v, []*evidence.Sample{sample}, opts)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printAlignments(&buf, result))
	lines := strings.Split(buf.String(), "\n")
	// The ref segments are contiguous and print as one.
	assert.True(t, strings.HasPrefix(lines[0], "## ref <Segment "), lines[0])
	assert.Equal(t, 1, strings.Count(lines[0], "<Segment"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "breakpoints [39]"), lines[1])
	assert.Equal(t, 2, strings.Count(lines[1], "<Segment"), lines[1])
	assert.Equal(t, "# s1 junction alt (alignmentScore)", lines[2])
}
