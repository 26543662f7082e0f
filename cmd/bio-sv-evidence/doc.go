// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


/*
bio-sv-evidence classifies the reads near a candidate structural variant as
supporting the reference allele, the alternate allele, or neither.

For every BAM file it samples the insert-size distribution and the pair
orientations, collects the reads (and their mates) around the variant's
breakpoints, realigns them against synthesized reference and alternate
allele sequences, and classifies each read pair.

Sample usage:
bio-sv-evidence evidence \
    --ref hs37d5.fa \
    --bam na12878.bam \
    --summary summary.tsv \
    del 1 72766323 72811840

Breakpoint formats:
    del <chrom> <start> <end>
    ins <chrom> <pos> [<end>] <seq>
    inv <chrom> <start> <end>
    mei <fasta> <chrom> <pos> <name> [<strand> [<start> [<end>]]]

Deletion coordinates are 1-based. A file passed with --variants holds one
variant per line, in the same format; lines starting with '#' are skipped.

Options may also be loaded from a YAML file with --opts; flags given on the
command line take precedence. See evidence.Opts for the field names.
*/
package main
