package evidence_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/svevidence/disambiguate"
	"github.com/grailbio/svevidence/encoding/bamprovider"
	"github.com/grailbio/svevidence/encoding/fasta"
	"github.com/grailbio/svevidence/evidence"
	"github.com/grailbio/svevidence/insertsize"
	"github.com/grailbio/svevidence/matepair"
	"github.com/grailbio/svevidence/variant"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
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

type deletionFixture struct {
	chr1    string
	genome  fasta.Fasta
	header  *sam.Header
	records []*sam.Record
}

// newDeletionFixture builds a 2kb chr1 and two unpaired reads around a 20bp
// deletion of chr1:1001-1020: one spanning the alt junction and one spanning
// the deleted bases.
func newDeletionFixture(t *testing.T) deletionFixture {
	chr1 := randomSeq(2000, 11)
	ref, err := sam.NewReference("chr1", "", "", len(chr1), nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)
	junction := chr1[960:1000] + chr1[1020:1060]
	spanning := chr1[970:1050]
	recs := []*sam.Record{
		bamprovider.NewRecord("junction", ref, 960, 0, -1, nil,
			sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 40), sam.NewCigarOp(sam.CigarSoftClipped, 40)}, junction, 60),
		bamprovider.NewRecord("spanning", ref, 970, 0, -1, nil,
			sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 80)}, spanning, 60),
	}
	return deletionFixture{
		chr1:    chr1,
		genome:  fasta.NewFromSeqs(map[string]string{"chr1": chr1}),
		header:  header,
		records: recs,
	}
}

func TestRunDeletion(t *testing.T) {
	ctx := context.Background()
	f := newDeletionFixture(t)
	opts := evidence.DefaultOpts
	opts.AlignDistance = 40
	opts.Processes = 2

	sample, err := evidence.NewSample(ctx, "s1", bamprovider.NewFakeProvider(f.header, f.records), opts, nil)
	require.NoError(t, err)
	assert.False(t, sample.Stats.HasInsertSizeDistribution())

	search, align := evidence.Distances(opts, []*evidence.Sample{sample})
	assert.Equal(t, 1000, search)
	assert.Equal(t, 40, align)

	v, err := variant.Parse("del", []string{"chr1", "1,001", "1020"}, align, f.genome, nil)
	require.NoError(t, err)
	alt, err := v.Seq(variant.Alt)
	require.NoError(t, err)
	require.Equal(t, f.chr1[960:1000]+f.chr1[1020:1060], alt)

	result, err := evidence.Run(ctx, v, []*evidence.Sample{sample}, opts)
	require.NoError(t, err)
	require.Len(t, result.Samples, 1)
	s := result.Samples[0]
	require.Len(t, s.Collections, 2)

	junction := s.Collections[0]
	require.Equal(t, "junction", junction.Name)
	label, reason := junction.Label()
	expect.EQ(t, label, variant.Alt)
	expect.EQ(t, reason, "alignmentScore")
	altAln := junction.Sets[variant.Alt].Alignments()[0]
	refAln := junction.Sets[variant.Ref].Alignments()[0]
	expect.EQ(t, altAln.Score, 160)
	expect.True(t, refAln.Score < altAln.Score)

	label, _ = s.Collections[1].Label()
	expect.EQ(t, label, variant.Ref)

	expect.EQ(t, s.Counts, counts(1, 1, 0))
	expect.EQ(t, result.Total(), counts(1, 1, 0))

	var buf bytes.Buffer
	require.NoError(t, evidence.WriteSummary(&buf, []*evidence.Result{result}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "variant\tsample\tallele\tkey\tvalue", lines[0])
	name := v.String()
	assert.Contains(t, lines, name+"\ts1\talt\tcount\t1")
	assert.Contains(t, lines, name+"\ts1\talt\treason_alignmentScore\t1")
	assert.Contains(t, lines, name+"\ts1\tamb\tcount\t0")
	assert.Contains(t, lines, name+"\tTotal\tref\tcount\t1")
}

func counts(alt, ref, amb int) disambiguate.Counts {
	return disambiguate.Counts{variant.Alt: alt, variant.Ref: ref, variant.Amb: amb}
}

func TestRunTooManyReads(t *testing.T) {
	ctx := context.Background()
	f := newDeletionFixture(t)
	opts := evidence.DefaultOpts
	opts.MaxReads = 1
	sample, err := evidence.NewSample(ctx, "s1", bamprovider.NewFakeProvider(f.header, f.records), opts, nil)
	require.NoError(t, err)
	v := variant.NewDeletion("chr1", 1000, 1019, 40, f.genome)
	_, err = evidence.Run(ctx, v, []*evidence.Sample{sample}, opts)
	require.Error(t, err)
	assert.True(t, matepair.IsTooManyReads(err))
}

func TestOpenSample(t *testing.T) {
	ctx := context.Background()
	tmp, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := newDeletionFixture(t)
	path := filepath.Join(tmp, "na12878.sorted.bam")
	require.NoError(t, bamprovider.WriteBAM(path, f.header, []*sam.Record{f.records[0], f.records[1]}))

	sample, err := evidence.OpenSample(ctx, path, evidence.DefaultOpts, nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sample.Close()) }()
	assert.Equal(t, "na12878", sample.Name)

	v := variant.NewDeletion("chr1", 1000, 1019, 40, f.genome)
	result, err := evidence.Run(ctx, v, []*evidence.Sample{sample}, evidence.DefaultOpts)
	require.NoError(t, err)
	assert.Equal(t, counts(1, 1, 0), result.Total())

	_, err = evidence.OpenSample(ctx, filepath.Join(tmp, "missing.bam"), evidence.DefaultOpts, nil)
	assert.Error(t, err)
}

func TestNameFromPath(t *testing.T) {
	expect.EQ(t, evidence.NameFromPath("/data/na12878.sorted.bam"), "na12878")
	expect.EQ(t, evidence.NameFromPath("s3://b/hg002.sort.bam"), "hg002")
	expect.EQ(t, evidence.NameFromPath("a.b+c.bam"), "a_b_c")
}

func TestDistances(t *testing.T) {
	inserts := make([]int, 2100)
	lengths := make([]int, 2100)
	for i := range inserts {
		inserts[i] = 300 + i%21 - 10
		lengths[i] = 150
	}
	sample := &evidence.Sample{Name: "s", Stats: insertsize.New(inserts, lengths, insertsize.Counts{"+-": 2100})}

	search, align := evidence.Distances(evidence.DefaultOpts, []*evidence.Sample{sample})
	assert.Equal(t, 600, search)
	assert.Equal(t, 600, align)

	opts := evidence.DefaultOpts
	opts.SearchDistance = 100
	search, align = evidence.Distances(opts, []*evidence.Sample{sample})
	assert.Equal(t, 100, search)
	assert.Equal(t, 600, align)

	sample.Stats = insertsize.New(nil, lengths, nil)
	search, align = evidence.Distances(evidence.DefaultOpts, []*evidence.Sample{sample})
	assert.Equal(t, 1000, search)
	assert.Equal(t, 1000, align)
}

func TestParseOrientations(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"any", nil},
		{"+-", []string{"+-"}},
		{"rf", []string{"-+"}},
		{"FR,ff", []string{"+-", "++"}},
		{"+-,any", nil},
	}
	for _, test := range tests {
		got, err := evidence.ParseOrientations(test.in)
		require.NoError(t, err, test.in)
		assert.Equal(t, test.want, got, test.in)
	}
	for _, bad := range []string{"+", "fx", "+-,-"} {
		_, err := evidence.ParseOrientations(bad)
		assert.True(t, errors.Is(errors.Invalid, err), bad)
	}
}

func TestPresets(t *testing.T) {
	opts := evidence.DefaultOpts
	require.NoError(t, opts.ApplyPreset("mate-pair"))
	assert.Equal(t, "-+", opts.Orientation)
	assert.Equal(t, 1000, opts.SearchDistance)

	opts = evidence.DefaultOpts
	opts.SearchDistance = 500
	require.NoError(t, opts.ApplyPreset("pacbio"))
	assert.True(t, opts.SingleEnded)
	assert.Equal(t, 0.65, opts.AlnQuality)
	assert.Equal(t, 500, opts.SearchDistance)

	opts = evidence.DefaultOpts
	require.NoError(t, opts.ApplyPreset("moleculo"))
	assert.Equal(t, 0.85, opts.AlnQuality)

	err := opts.ApplyPreset("nanopore")
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestLoadOpts(t *testing.T) {
	ctx := context.Background()
	tmp, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	path := filepath.Join(tmp, "opts.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("preset: pacbio\naln-quality: 0.7\nmax-reads: 5000\n"), 0600))
	opts, err := evidence.LoadOpts(ctx, path, evidence.DefaultOpts)
	require.NoError(t, err)
	assert.True(t, opts.SingleEnded)
	assert.Equal(t, 0.7, opts.AlnQuality)
	assert.Equal(t, 5000, opts.MaxReads)
	assert.Equal(t, 1000, opts.SearchDistance)
	assert.Equal(t, evidence.DefaultOpts.AlignmentScoreDelta, opts.AlignmentScoreDelta)

	require.NoError(t, ioutil.WriteFile(path, []byte("no-such-field: 1\n"), 0600))
	_, err = evidence.LoadOpts(ctx, path, evidence.DefaultOpts)
	assert.True(t, errors.Is(errors.Invalid, err))

	require.NoError(t, ioutil.WriteFile(path, []byte("orientation: sideways\n"), 0600))
	_, err = evidence.LoadOpts(ctx, path, evidence.DefaultOpts)
	assert.True(t, errors.Is(errors.Invalid, err))

	_, err = evidence.LoadOpts(ctx, filepath.Join(tmp, "missing.yaml"), evidence.DefaultOpts)
	assert.Error(t, err)
}
