/*Package interval implements interval-union operations over genomic
  coordinates loaded from BED files or region strings.
  Overlapping and touching intervals are merged, not tracked separately.
  The union is used as an exclusion mask: positions inside it are skipped by
  callers that sample the genome.
*/
package interval
