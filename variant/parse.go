package variant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svevidence/encoding/fasta"
	"github.com/grailbio/svevidence/locus"
)

// BreakpointFormats describes the argument list Parse expects per type.
var BreakpointFormats = map[string]string{
	"del": "<chrom> <start> <end>",
	"ins": "<chrom> <pos> [end] <seq>; give end for a compound deletion-insertion, otherwise the sequence is inserted before pos",
	"inv": "<chrom> <start> <end>",
	"mei": "<mobile_elements.fasta> <chrom> <pos> <ME name> [ME strand [start [end]]]",
}

// Opener opens the FASTA file holding mobile element sequences.
type Opener func(path string) (fasta.Fasta, error)

func formatError(typ string, args []string) error {
	return errors.E(errors.Invalid, fmt.Sprintf("variant: bad %s breakpoints %q; format is '%s'", typ, args, BreakpointFormats[typ]))
}

func atoi(typ string, args []string, i int) (int, error) {
	n, err := strconv.Atoi(strings.Replace(args[i], ",", "", -1))
	if err != nil {
		return 0, errors.E(errors.Invalid, err, formatError(typ, args).Error())
	}
	return n, nil
}

// Parse builds a variant from a type name ("del", "ins", "inv" or "mei";
// only the prefix matters and case is ignored) and its breakpoint arguments.
// Deletion coordinates are 1-based. openRepeats is used only for mobile
// element insertions.
func Parse(typ string, args []string, alignDistance int, genome fasta.Fasta, openRepeats Opener) (*Variant, error) {
	lower := strings.ToLower(typ)
	switch {
	case strings.HasPrefix(lower, "del"):
		if len(args) != 3 {
			return nil, formatError("del", args)
		}
		start, err := atoi("del", args, 1)
		if err != nil {
			return nil, err
		}
		end, err := atoi("del", args, 2)
		if err != nil {
			return nil, err
		}
		if start >= end {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("variant: deletion start %d must precede end %d", start, end))
		}
		return NewDeletion(args[0], start-1, end-1, alignDistance, genome), nil
	case strings.HasPrefix(lower, "ins"):
		if len(args) != 3 && len(args) != 4 {
			return nil, formatError("ins", args)
		}
		pos, err := atoi("ins", args, 1)
		if err != nil {
			return nil, err
		}
		end, seq := pos, args[2]
		if len(args) == 4 {
			if end, err = atoi("ins", args, 2); err != nil {
				return nil, err
			}
			seq = args[3]
		}
		return NewInsertion(locus.New(args[0], pos, end, locus.Forward), seq, alignDistance, genome), nil
	case strings.HasPrefix(lower, "inv"):
		if len(args) != 3 {
			return nil, formatError("inv", args)
		}
		start, err := atoi("inv", args, 1)
		if err != nil {
			return nil, err
		}
		end, err := atoi("inv", args, 2)
		if err != nil {
			return nil, err
		}
		return NewInversion(locus.New(args[0], start, end, locus.Forward), alignDistance, genome), nil
	case strings.HasPrefix(lower, "mei"):
		return parseMEI(args, alignDistance, genome, openRepeats)
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("variant: unknown variant type %q; expected one of del, ins, inv, mei", typ))
}

func parseMEI(args []string, alignDistance int, genome fasta.Fasta, openRepeats Opener) (*Variant, error) {
	if len(args) < 4 || len(args) > 7 {
		return nil, formatError("mei", args)
	}
	pos, err := atoi("mei", args, 2)
	if err != nil {
		return nil, err
	}
	if openRepeats == nil {
		return nil, errors.E(errors.Invalid, "variant: no opener for mobile element sequences")
	}
	repeats, err := openRepeats(args[0])
	if err != nil {
		return nil, errors.E(err, "variant: open mobile elements", args[0])
	}
	name := args[3]
	strand := locus.Forward
	if len(args) > 4 {
		if strand, err = locus.ParseStrand(args[4]); err != nil {
			return nil, err
		}
	}
	var start int
	if len(args) > 5 {
		if start, err = atoi("mei", args, 5); err != nil {
			return nil, err
		}
	}
	var end int
	if len(args) > 6 {
		if end, err = atoi("mei", args, 6); err != nil {
			return nil, err
		}
	} else {
		n, err := repeats.Len(name)
		if err != nil {
			return nil, errors.E(errors.NotExist, err, "variant: mobile element", name)
		}
		end = int(n) - 1
	}
	breakpoint := locus.New(args[1], pos, pos, locus.Forward)
	return NewMEI(breakpoint, locus.New(name, start, end, strand), repeats, alignDistance, genome), nil
}
