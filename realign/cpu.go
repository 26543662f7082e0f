package realign

import (
	"bufio"
	"io"
	"runtime"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
)

const cpuinfoPath = "/proc/cpuinfo"

// PhysicalCores returns the number of physical cores, ignoring hyperthreads.
// It falls back to runtime.NumCPU if /proc/cpuinfo can't be read.
func PhysicalCores() int {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, cpuinfoPath)
	if err != nil {
		return runtime.NumCPU()
	}
	defer in.Close(ctx) // nolint: errcheck
	n := countPhysicalCores(in.Reader(ctx))
	if n == 0 {
		log.Debug.Printf("realign: no core ids in %s, using %d logical cpus", cpuinfoPath, runtime.NumCPU())
		return runtime.NumCPU()
	}
	return n
}

// countPhysicalCores counts the distinct (physical id, core id) pairs in
// cpuinfo-formatted text.
func countPhysicalCores(r io.Reader) int {
	type core struct{ physicalID, coreID string }
	cores := map[core]struct{}{}
	var cur core
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "processor":
			cur = core{}
		case "physical id":
			cur.physicalID = val
		case "core id":
			cur.coreID = val
			cores[cur] = struct{}{}
		}
	}
	return len(cores)
}
