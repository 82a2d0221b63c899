// Package profiler implements spec.md §4.9's sampling profiler: periodic
// attribution of the active call chain to source ranges, and the HTML
// heatmap dump of the accumulated samples. Grounded on
// original_source/s_vm.cpp's ProfileState/OpenRange/recordProfile/dump.
package profiler

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"lucent/internal/interp"
	"lucent/internal/ir"
	"lucent/internal/sourcemap"
)

// Profiler implements interp.Profiler: sampled once per instruction batch,
// it records a direct sample for the innermost frame's current source range
// and an indirect sample for each enclosing frame's range, at most once per
// interpreter cycle per range (spec.md §4.9's lastCycleSeen guard).
type Profiler struct {
	// Stride is the minimum wall-clock gap between recorded samples.
	// Defaults to 100µs; spec.md §9 calls this out as a configurable knob
	// rather than the original's hard-coded constant.
	Stride time.Duration

	// Now is the clock hook, overridable in tests; defaults to time.Now.
	Now func() time.Time

	started, last time.Time
	samples       int
	direct        map[*ir.FileRange]int
	indirect      map[*ir.FileRange]int
}

// New returns a Profiler with the default 100µs stride.
func New() *Profiler {
	return &Profiler{
		Stride:   100 * time.Microsecond,
		Now:      time.Now,
		direct:   map[*ir.FileRange]int{},
		indirect: map[*ir.FileRange]int{},
	}
}

// Sample implements interp.Profiler. It no-ops unless at least Stride has
// elapsed since the previous recorded sample.
func (p *Profiler) Sample(s *interp.State) {
	now := p.Now()
	if p.samples == 0 {
		p.started = now
	} else if now.Sub(p.last) < p.Stride {
		return
	}
	p.last = now
	p.samples++

	cycle := s.CycleCount
	frames := s.Frames
	innermost := len(frames) - 1
	for i := innermost; i >= 0; i-- {
		fr := frames[i].CurrentRange()
		if fr == nil {
			continue
		}
		if i == innermost {
			p.direct[fr]++
		} else if fr.LastCycleSeen != cycle {
			p.indirect[fr]++
		}
		fr.LastCycleSeen = cycle
	}
}

// Summary renders a one-line digest, e.g. "412,004 samples over 1.2s". Dump
// embeds it as an HTML comment at the top of the report; cmd/lucent's
// profile subcommand does not print it.
func (p *Profiler) Summary() string {
	var elapsed time.Duration
	if !p.started.IsZero() {
		elapsed = p.last.Sub(p.started)
	}
	return fmt.Sprintf("%s samples over %s", humanize.Comma(int64(p.samples)), elapsed)
}

type profRange struct {
	from, to sourcemap.Addr
	samples  int
	direct   bool
}

// Dump writes the text/html profile report spec.md §4.9 describes: a
// <pre>-wrapped reproduction of rec's source with nested <span> annotations,
// no external stylesheet or scripting, '<'/'>' escaped.
func (p *Profiler) Dump(w io.Writer, rec *sourcemap.Record) error {
	records, sumDirect, maxDirect := p.collectRecords()

	if _, err := io.WriteString(w, "<!DOCTYPE html>\n<html>\n<head>\n<style>\nspan { position: relative; }\n</style>\n</head>\n<body>\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "<!-- %s -->\n", p.Summary()); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "<pre>\n"); err != nil {
		return err
	}

	if err := dumpSource(w, rec, records, sumDirect, maxDirect); err != nil {
		return err
	}

	_, err := io.WriteString(w, "</pre>\n</body>\n</html>\n")
	return err
}

// collectRecords flattens the direct/indirect sample tables into one sorted
// list. Percentages and the indirect weight/border/size are normalized
// against sumDirect alone for both direct and indirect records, matching
// ProfileState::dump — indirect samples are reported as a fraction of direct
// activity, not of their own total. The background heat is scaled against
// maxDirect.
func (p *Profiler) collectRecords() (records []profRange, sumDirect, maxDirect int) {
	for fr, n := range p.direct {
		records = append(records, profRange{fr.TextFrom, fr.TextTo, n, true})
		sumDirect += n
		if n > maxDirect {
			maxDirect = n
		}
	}
	for fr, n := range p.indirect {
		records = append(records, profRange{fr.TextFrom, fr.TextTo, n, false})
	}

	// Ranges which start earlier come first; among ties, the one ending
	// later (the outer range) comes first, so a parent <span> opens before
	// its children — spec.md §4.9's (textFrom asc, textTo desc) ordering.
	sort.Slice(records, func(i, j int) bool {
		if records[i].from != records[j].from {
			return records[i].from < records[j].from
		}
		return records[i].to > records[j].to
	})
	return records, sumDirect, maxDirect
}

type openSpan struct {
	to     sourcemap.Addr
	n      int
	direct bool
}

func dumpSource(w io.Writer, rec *sourcemap.Record, records []profRange, sumDirect, maxDirect int) error {
	base := rec.Base()
	text := rec.Buffer
	var stack []openSpan
	idx := 0
	spanIndex := 100000

	for offset := 0; offset < len(text); offset++ {
		addr := base + sourcemap.Addr(offset)

		for len(stack) > 0 && stack[len(stack)-1].to == addr {
			stack = stack[:len(stack)-1]
			if _, err := io.WriteString(w, "</span>"); err != nil {
				return err
			}
		}
		for idx < len(records) && records[idx].from < addr {
			idx++
		}
		for idx < len(records) && records[idx].from == addr {
			rcd := records[idx]
			stack = append(stack, openSpan{to: rcd.to, n: rcd.samples, direct: rcd.direct})
			if err := writeSpanOpen(w, stack, &spanIndex, sumDirect, maxDirect); err != nil {
				return err
			}
			idx++
		}
		// Zero-width ranges (textFrom == textTo) close immediately.
		for len(stack) > 0 && stack[len(stack)-1].to == addr {
			stack = stack[:len(stack)-1]
			if _, err := io.WriteString(w, "</span>"); err != nil {
				return err
			}
		}

		switch text[offset] {
		case '<':
			if _, err := io.WriteString(w, "&lt;"); err != nil {
				return err
			}
		case '>':
			if _, err := io.WriteString(w, "&gt;"); err != nil {
				return err
			}
		default:
			if _, err := w.Write(text[offset : offset+1]); err != nil {
				return err
			}
		}
	}

	// Close anything still open at end-of-source (a range whose textTo is
	// the address one past the last character never triggers the
	// textTo==addr check inside the loop, since the loop never visits that
	// address) so the document's <span> tags stay balanced.
	for range stack {
		if _, err := io.WriteString(w, "</span>"); err != nil {
			return err
		}
	}
	return nil
}

// writeSpanOpen emits one <span> tag whose style encodes the innermost
// direct and indirect sample counts visible on the open-range stack, per
// spec.md §4.9: background heat from the direct fraction, font weight/
// border/font-size from the indirect fraction, decreasing z-index so inner
// spans sit above outer ones.
func writeSpanOpen(w io.Writer, stack []openSpan, spanIndex *int, sumDirect, maxDirect int) error {
	var samplesDirect, samplesIndirect int
	var foundDirect, foundIndirect bool
	for k := len(stack) - 1; k >= 0 && (!foundDirect || !foundIndirect); k-- {
		if !foundDirect && stack[k].direct {
			samplesDirect = stack[k].n
			foundDirect = true
		}
		if !foundIndirect && !stack[k].direct {
			samplesIndirect = stack[k].n
			foundIndirect = true
		}
	}

	percentDirect, percentIndirect := 0.0, 0.0
	if sumDirect > 0 {
		percentDirect = float64(samplesDirect) * 100.0 / float64(sumDirect)
		percentIndirect = float64(samplesIndirect) * 100.0 / float64(sumDirect)
	}
	hexDirect := 255
	if maxDirect > 0 {
		hexDirect = 255 - samplesDirect*255/maxDirect
	}
	weightIndirect := 100
	borderIndirect := 0.0
	fontSizeIndirect := 100
	if sumDirect > 0 {
		weightIndirect = 100 + 100*((samplesIndirect*8)/sumDirect)
		borderIndirect = float64(samplesIndirect) * 3.0 / float64(sumDirect)
		fontSizeIndirect = 100 + (samplesIndirect*10)/sumDirect
	}
	clampedBorder := borderIndirect
	if clampedBorder > 1 {
		clampedBorder = 1
	}
	borderColumn := 15 - int(15*clampedBorder)

	if _, err := fmt.Fprintf(w, `<span title="%.2f%% active, %.2f%% in backtrace" style="`, percentDirect, percentIndirect); err != nil {
		return err
	}
	if hexDirect <= 250 {
		if _, err := fmt.Fprintf(w, "background-color:#ff%02x%02x;", hexDirect, hexDirect); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "font-weight:%d; border-bottom:%fpx solid #%01x%01x%01x; font-size: %d%%;",
		weightIndirect, borderIndirect, borderColumn, borderColumn, borderColumn, fontSizeIndirect); err != nil {
		return err
	}
	*spanIndex--
	if _, err := fmt.Fprintf(w, "z-index: %d;\">", *spanIndex); err != nil {
		return err
	}
	return nil
}
