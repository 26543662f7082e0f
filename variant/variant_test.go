package variant

import (
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svevidence/biosimd"
	"github.com/grailbio/svevidence/encoding/fasta"
	"github.com/grailbio/svevidence/locus"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// randomSeq returns a deterministic pseudo-random DNA sequence.
func randomSeq(n int, seed uint32) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		seed = seed*1664525 + 1013904223
		sb.WriteByte("ACGT"[seed>>30])
	}
	return sb.String()
}

func testGenome() (fasta.Fasta, string) {
	chr1 := randomSeq(300, 1)
	return fasta.NewFromSeqs(map[string]string{"chr1": chr1}), chr1
}

func mustSeq(t *testing.T, v *Variant, allele Allele) string {
	seq, err := v.Seq(allele)
	require.NoError(t, err)
	return seq
}

func TestDeletion(t *testing.T) {
	genome, chr1 := testGenome()
	v, err := Parse("del", []string{"chr1", "51", "70"}, 20, genome, nil)
	require.NoError(t, err)
	expect.EQ(t, v.Kind, Deletion)
	expect.EQ(t, v.Breakpoints[0].Start, 50)
	expect.EQ(t, v.Breakpoints[1].End, 69)

	ref, alt := mustSeq(t, v, Ref), mustSeq(t, v, Alt)
	expect.EQ(t, ref, chr1[30:90])
	expect.EQ(t, alt, chr1[30:50]+chr1[70:90])
	expect.EQ(t, len(ref)-len(alt), 69-50+1)
	expect.EQ(t, mustSeq(t, v, Amb), ref)

	bps, err := v.RelativeBreakpoints(Ref)
	assert.NoError(t, err)
	expect.EQ(t, bps, []int{19, 38})
	bps, err = v.RelativeBreakpoints(Alt)
	assert.NoError(t, err)
	expect.EQ(t, bps, []int{19})

	expect.EQ(t, v.SearchRegions(10), []locus.Locus{locus.New("chr1", 40, 79, locus.Forward)})
	expect.EQ(t, v.ShortName(), "del_chr1_50")

	n, err := v.Len(Alt)
	assert.NoError(t, err)
	expect.EQ(t, n, 40)
}

func TestDeletionString(t *testing.T) {
	genome, _ := testGenome()
	v := NewDeletion("chr1", 999, 1019, 10, genome)
	expect.EQ(t, v.String(), "Deletion::chr1:999-1,019(20)")
	expect.EQ(t, v.ShortName(), "del_chr1_999")
}

func TestClampedFlank(t *testing.T) {
	genome, chr1 := testGenome()
	v := NewDeletion("chr1", 5, 9, 20, genome)
	expect.EQ(t, mustSeq(t, v, Alt), chr1[0:5]+chr1[10:30])
	v = NewDeletion("chr1", 280, 289, 20, genome)
	expect.EQ(t, mustSeq(t, v, Alt), chr1[260:280]+chr1[290:300])
}

func TestUpperCase(t *testing.T) {
	genome := fasta.NewFromSeqs(map[string]string{"chr1": "acgtacgtacGTACGTACGT"})
	v := NewDeletion("chr1", 8, 9, 4, genome)
	expect.EQ(t, mustSeq(t, v, Ref), "ACGTACGTAC")
	expect.EQ(t, mustSeq(t, v, Alt), "ACGTGTAC")
}

func TestInversion(t *testing.T) {
	genome, chr1 := testGenome()
	v, err := Parse("INVERSION", []string{"chr1", "100", "119"}, 10, genome, nil)
	require.NoError(t, err)
	ref, alt := mustSeq(t, v, Ref), mustSeq(t, v, Alt)
	expect.EQ(t, len(ref), len(alt))
	expect.EQ(t, ref[:10], alt[:10])
	expect.EQ(t, ref[len(ref)-10:], alt[len(alt)-10:])
	expect.EQ(t, alt[10:30], biosimd.ReverseCompString(chr1[100:120]))

	refBps, err := v.RelativeBreakpoints(Ref)
	assert.NoError(t, err)
	altBps, err := v.RelativeBreakpoints(Alt)
	assert.NoError(t, err)
	expect.EQ(t, refBps, altBps)
	expect.EQ(t, refBps, []int{9, 28})

	expect.EQ(t, v.SearchRegions(5), []locus.Locus{
		locus.New("chr1", 95, 105, locus.Forward),
		locus.New("chr1", 114, 124, locus.Forward),
	})
	expect.EQ(t, v.SearchRegions(20), []locus.Locus{locus.New("chr1", 80, 139, locus.Forward)})
	// Windows that just overlap are merged.
	expect.EQ(t, v.SearchRegions(10), []locus.Locus{locus.New("chr1", 90, 129, locus.Forward)})
	expect.EQ(t, v.String(), "Inversion::chr1:100-119")
}

func TestMergedSegments(t *testing.T) {
	genome, _ := testGenome()
	v := NewInversion(locus.New("chr1", 100, 119, locus.Forward), 10, genome)
	segs, err := v.Segments(Ref)
	require.NoError(t, err)
	merged := MergedSegments(segs)
	expect.EQ(t, len(merged), 1)
	expect.EQ(t, merged[0].ID, "0_1_2")
	expect.EQ(t, merged[0].Start, 90)
	expect.EQ(t, merged[0].End, 129)

	segs, err = v.Segments(Alt)
	require.NoError(t, err)
	expect.EQ(t, len(MergedSegments(segs)), 3)

	expect.EQ(t, len(MergedSegments(nil)), 0)
}

func TestInsertion(t *testing.T) {
	genome, chr1 := testGenome()
	v, err := Parse("ins", []string{"chr1", "100", "ACGTTT"}, 10, genome, nil)
	require.NoError(t, err)
	expect.EQ(t, mustSeq(t, v, Ref), chr1[90:111])
	expect.EQ(t, mustSeq(t, v, Alt), chr1[90:100]+"ACGTTT"+chr1[100:111])
	bps, err := v.RelativeBreakpoints(Alt)
	assert.NoError(t, err)
	expect.EQ(t, bps, []int{9, 15})
	expect.EQ(t, v.String(), "Insertion::chr1:100;len=6")

	// Compound deletion-insertion.
	v, err = Parse("ins", []string{"chr1", "100", "104", "GG"}, 10, genome, nil)
	require.NoError(t, err)
	segs, err := v.Segments(Ref)
	require.NoError(t, err)
	expect.EQ(t, len(segs), 3)
	expect.EQ(t, segs[1].ID, "3")
	expect.EQ(t, mustSeq(t, v, Ref), chr1[90:115])
	expect.EQ(t, mustSeq(t, v, Alt), chr1[90:100]+"GG"+chr1[105:115])
}

func TestMEI(t *testing.T) {
	genome, chr1 := testGenome()
	repeats := fasta.NewFromSeqs(map[string]string{"L1": "AAAACCCCGGGG"})
	open := func(path string) (fasta.Fasta, error) {
		expect.EQ(t, path, "mei.fa")
		return repeats, nil
	}
	v, err := Parse("mei", []string{"mei.fa", "chr1", "100", "L1", "-", "2"}, 10, genome, open)
	require.NoError(t, err)
	expect.EQ(t, v.Inserted, locus.New("L1", 2, 11, locus.Reverse))
	expect.EQ(t, mustSeq(t, v, Ref), chr1[90:111])
	expect.EQ(t, mustSeq(t, v, Alt), chr1[90:100]+"CCCCGGGGTT"+chr1[100:111])
	expect.EQ(t, v.ShortName(), "mei_chr1_100")

	v, err = Parse("mei", []string{"mei.fa", "chr1", "100", "L1"}, 10, genome, open)
	require.NoError(t, err)
	expect.EQ(t, mustSeq(t, v, Alt), chr1[90:100]+"AAAACCCCGGGG"+chr1[100:111])

	_, err = Parse("mei", []string{"mei.fa", "chr1", "100", "Alu"}, 10, genome, open)
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestErrors(t *testing.T) {
	genome, _ := testGenome()
	_, err := Parse("dup", []string{"chr1", "1", "2"}, 10, genome, nil)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = Parse("del", []string{"chr1", "1"}, 10, genome, nil)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = Parse("del", []string{"chr1", "20", "10"}, 10, genome, nil)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = Parse("inv", []string{"chr1", "x", "10"}, 10, genome, nil)
	expect.True(t, errors.Is(errors.Invalid, err))

	v := NewDeletion("chr1", 50, 60, 10, genome)
	_, err = v.Seq(Allele("het"))
	expect.True(t, errors.Is(errors.Invalid, err))

	v = NewDeletion("chrZ", 50, 60, 10, genome)
	_, err = v.Seq(Ref)
	expect.True(t, errors.Is(errors.NotExist, err))
}
