package matepair_test

import (
	"context"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/svevidence/encoding/bamprovider"
	"github.com/grailbio/svevidence/locus"
	"github.com/grailbio/svevidence/matepair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRec struct {
	name    string
	ref     int
	pos     int
	flags   sam.Flags
	mateRef int
	matePos int
	mapq    byte
}

func newProvider(t *testing.T, refNames []string, trecs []testRec) bamprovider.Provider {
	var refs []*sam.Reference
	for _, name := range refNames {
		ref, err := sam.NewReference(name, "", "", 10000, nil, nil)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	header, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	m10 := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 10)}
	var recs []*sam.Record
	for _, r := range trecs {
		var mateRef *sam.Reference
		if r.mateRef >= 0 {
			mateRef = refs[r.mateRef]
		}
		recs = append(recs, bamprovider.NewRecord(r.name, refs[r.ref], r.pos, r.flags, r.matePos, mateRef, m10, "ACGTACGTAC", r.mapq))
	}
	return bamprovider.NewFakeProvider(header, recs)
}

const (
	r1 = sam.Paired | sam.Read1
	r2 = sam.Paired | sam.Read2 | sam.Reverse
)

var testRecs = []testRec{
	{"p1", 0, 100, r1, 0, 5000, 60},
	{"p1", 0, 5000, r2, 0, 100, 60},
	{"p2", 0, 150, r1, 0, 300, 60},
	{"p2", 0, 300, r2, 0, 150, 60},
	{"p3", 0, 250, r1, 1, 200, 60},
	{"p3", 1, 200, r2, 0, 250, 60},
	{"p4", 0, 260, r1, 0, 8000, 20},
	{"u1", 0, 200, 0, -1, -1, 60},
	{"s1", 0, 120, r1 | sam.Secondary, 0, 300, 60},
	{"d1", 0, 140, r1 | sam.Duplicate, 0, 300, 60},
	{"sup", 0, 130, r1 | sam.Supplementary, 0, 300, 60},
	{"lowq", 0, 135, r1, 0, 300, 5},
}

type readKey struct {
	name string
	ref  string
	pos  int
}

func keys(result *matepair.Result) []readKey {
	var k []readKey
	for _, r := range result.Reads {
		k = append(k, readKey{r.Name, r.Ref.Name(), r.Pos})
	}
	return k
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, []string{"chr1", "chr2"}, testRecs)
	opts := matepair.DefaultOpts
	opts.MinMapq = 10
	region := locus.New("chr1", 50, 400, locus.Forward)
	result, err := matepair.Collect(ctx, p, []locus.Locus{region}, opts)
	require.NoError(t, err)
	assert.Equal(t, []readKey{
		{"p1", "chr1", 100},
		{"p1", "chr1", 5000},
		{"p2", "chr1", 150},
		{"p2", "chr1", 300},
		{"p3", "chr1", 250},
		{"p3", "chr2", 200},
		{"p4", "chr1", 260},
		{"u1", "chr1", 200},
	}, keys(result))
	assert.True(t, result.SupplementaryFound)
	assert.Equal(t, 1, result.MissingMates)

	opts.IncludeSupplementary = true
	result, err = matepair.Collect(ctx, p, []locus.Locus{region}, opts)
	require.NoError(t, err)
	assert.False(t, result.SupplementaryFound)
	assert.Equal(t, 9, len(result.Reads))
}

func TestCollectIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, []string{"chr1", "chr2"}, testRecs)
	region := locus.New("chr1", 50, 400, locus.Forward)
	once, err := matepair.Collect(ctx, p, []locus.Locus{region}, matepair.DefaultOpts)
	require.NoError(t, err)
	twice, err := matepair.Collect(ctx, p, []locus.Locus{region, region}, matepair.DefaultOpts)
	require.NoError(t, err)
	assert.Equal(t, keys(once), keys(twice))
	again, err := matepair.Collect(ctx, p, []locus.Locus{region}, matepair.DefaultOpts)
	require.NoError(t, err)
	assert.Equal(t, keys(once), keys(again))
}

func TestCollectSingleEnded(t *testing.T) {
	p := newProvider(t, []string{"chr1", "chr2"}, testRecs)
	opts := matepair.DefaultOpts
	opts.SingleEnded = true
	opts.MinMapq = 10
	result, err := matepair.Collect(context.Background(), p, []locus.Locus{locus.New("chr1", 50, 400, locus.Forward)}, opts)
	require.NoError(t, err)
	assert.Equal(t, []readKey{
		{"p1", "chr1", 100},
		{"p2", "chr1", 150},
		{"p2", "chr1", 300},
		{"p3", "chr1", 250},
		{"p4", "chr1", 260},
		{"u1", "chr1", 200},
	}, keys(result))
}

func TestPairMinMapq(t *testing.T) {
	p := newProvider(t, []string{"chr1", "chr2"}, testRecs)
	opts := matepair.DefaultOpts
	opts.MinMapq = 10
	opts.PairMinMapq = 30
	result, err := matepair.Collect(context.Background(), p, []locus.Locus{locus.New("chr1", 250, 270, locus.Forward)}, opts)
	require.NoError(t, err)
	assert.Equal(t, []readKey{
		{"p3", "chr1", 250},
		{"p3", "chr2", 200},
	}, keys(result))
}

func TestTooManyReads(t *testing.T) {
	p := newProvider(t, []string{"chr1", "chr2"}, testRecs)
	opts := matepair.DefaultOpts
	opts.MaxReads = 3
	_, err := matepair.GetReads(context.Background(), p, []locus.Locus{locus.New("chr1", 50, 400, locus.Forward)}, opts)
	assert.Equal(t, matepair.ErrTooManyReads, err)
	assert.True(t, matepair.IsTooManyReads(errors.E(err, "variant")))
	assert.False(t, matepair.IsTooManyReads(errors.E(errors.NotExist, "chr9")))
	assert.False(t, matepair.IsTooManyReads(nil))
}

func TestTooManyReadsCountsBeforeFiltering(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, []string{"chr1", "chr2"}, testRecs)
	regions := []locus.Locus{locus.New("chr1", 110, 145, locus.Forward)}
	opts := matepair.DefaultOpts
	opts.SingleEnded = true

	// s1, sup, lowq and d1 overlap; only lowq is kept.
	opts.MaxReads = 2
	_, err := matepair.Collect(ctx, p, regions, opts)
	assert.Equal(t, matepair.ErrTooManyReads, err)

	opts.MaxReads = 4
	result, err := matepair.Collect(ctx, p, regions, opts)
	require.NoError(t, err)
	assert.Equal(t, []readKey{{"lowq", "chr1", 135}}, keys(result))

	_, err = matepair.Collect(ctx, p, []locus.Locus{locus.New("chr9", 0, 100, locus.Forward)}, opts)
	assert.True(t, errors.Is(errors.NotExist, err), "%v", err)
}

func TestGetReadsChrRetry(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, []string{"1", "2"}, testRecs)
	regions := []locus.Locus{locus.New("chr1", 50, 400, locus.Forward)}
	_, err := matepair.Collect(ctx, p, regions, matepair.DefaultOpts)
	assert.True(t, errors.Is(errors.NotExist, err), "%v", err)

	result, err := matepair.GetReads(ctx, p, regions, matepair.DefaultOpts)
	require.NoError(t, err)
	assert.Equal(t, 9, len(result.Reads))
	assert.Equal(t, "1", result.Reads[0].Ref.Name())

	_, err = matepair.GetReads(ctx, p, []locus.Locus{locus.New("chrX", 50, 400, locus.Forward)}, matepair.DefaultOpts)
	assert.True(t, errors.Is(errors.NotExist, err), "%v", err)
}
