package profiler

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"lucent/internal/diagnostics"
	"lucent/internal/gc"
	"lucent/internal/interp"
	"lucent/internal/optimizer"
	"lucent/internal/parser"
)

// runProfiled parses and runs src with a Profiler attached, firing Sample on
// a fake clock advancing by step every call so Stride-gating never skips a
// sample. Returns the profiler with its accumulated samples.
func runProfiled(t *testing.T, src string, step time.Duration) *Profiler {
	t.Helper()
	p, perr := parser.NewParser([]byte(src), "prof.lc")
	if perr != nil {
		t.Fatalf("tokenize error: %v", perr)
	}
	uf, err := p.ParseModule()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	optimized := optimizer.Run(uf, nil)

	prof := New()
	var now time.Time
	prof.Now = func() time.Time {
		now = now.Add(step)
		return now
	}
	prof.Stride = 0

	heap := gc.NewHeap()
	s := interp.NewState(heap, diagnostics.DiscardSink{}, "prof.lc")
	s.Profiler = prof
	if _, err := s.RunModule(optimized); err != nil {
		t.Fatalf("run error: %v", err)
	}
	return prof
}

func TestSampleAccumulatesDirectAndIndirectCounts(t *testing.T) {
	prof := runProfiled(t, `
fn inner() { let x = 1; return x; }
fn outer() {
    let i = 0;
    while (i < 50) {
        inner();
        i = i + 1;
    }
    return i;
}
return outer();
`, time.Microsecond)

	if prof.samples == 0 {
		t.Fatal("expected at least one recorded sample")
	}
	if len(prof.direct) == 0 {
		t.Fatal("expected at least one direct-sampled range")
	}
	if len(prof.indirect) == 0 {
		t.Fatal("expected at least one indirect-sampled range (inner called from outer's loop body)")
	}
}

func TestSampleRespectsStride(t *testing.T) {
	prof := New()
	var now time.Time
	prof.Now = func() time.Time { return now }
	prof.Stride = time.Second

	heap := gc.NewHeap()
	s := interp.NewState(heap, diagnostics.DiscardSink{}, "t.lc")
	s.Frames = nil

	prof.Sample(s)
	if prof.samples != 1 {
		t.Fatalf("expected first Sample to record, got %d samples", prof.samples)
	}
	prof.Sample(s)
	if prof.samples != 1 {
		t.Fatalf("expected second Sample within Stride to no-op, got %d samples", prof.samples)
	}
	now = now.Add(2 * time.Second)
	prof.Sample(s)
	if prof.samples != 2 {
		t.Fatalf("expected Sample past Stride to record, got %d samples", prof.samples)
	}
}

func TestSummaryFormatsSampleCount(t *testing.T) {
	prof := runProfiled(t, `
let i = 0;
while (i < 3000) { i = i + 1; }
return i;
`, time.Microsecond)

	summary := prof.Summary()
	if !strings.Contains(summary, "samples over") {
		t.Fatalf("expected summary to mention sample count and duration, got %q", summary)
	}
}

var spanOpenRe = regexp.MustCompile(`<span[^>]*style="([^"]*)"`)

func TestDumpProducesWellFormedHeatmap(t *testing.T) {
	src := `
fn small(n) { return n + 1; }
let total = 0;
let i = 0;
while (i < 200) {
    total = total + small(i);
    i = i + 1;
}
return total;
`
	p, perr := parser.NewParser([]byte(src), "dump.lc")
	if perr != nil {
		t.Fatalf("tokenize error: %v", perr)
	}
	uf, err := p.ParseModule()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	optimized := optimizer.Run(uf, nil)

	prof := New()
	var now time.Time
	prof.Now = func() time.Time {
		now = now.Add(time.Microsecond)
		return now
	}
	prof.Stride = 0

	heap := gc.NewHeap()
	s := interp.NewState(heap, diagnostics.DiscardSink{}, "dump.lc")
	s.Profiler = prof
	if _, err := s.RunModule(optimized); err != nil {
		t.Fatalf("run error: %v", err)
	}

	var buf bytes.Buffer
	if err := prof.Dump(&buf, p.Record()); err != nil {
		t.Fatalf("Dump error: %v", err)
	}
	out := buf.String()

	if strings.Count(out, "<span") != strings.Count(out, "</span>") {
		t.Fatalf("unbalanced <span> tags:\n%s", out)
	}
	if !strings.Contains(out, "<!DOCTYPE html>") || !strings.Contains(out, "</html>") {
		t.Fatalf("expected a full HTML document, got:\n%s", out)
	}

	matches := spanOpenRe.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		t.Fatal("expected at least one <span> with a style attribute")
	}
	sawHeat := false
	for _, m := range matches {
		if strings.Contains(m[1], "background-color") {
			sawHeat = true
			break
		}
	}
	if !sawHeat {
		t.Fatal("expected at least one <span> with a non-zero background-heat style")
	}
}

func TestCollectRecordsSortsByTextFromAscTextToDesc(t *testing.T) {
	prof := runProfiled(t, `
fn a() { return 1; }
fn b() { return a() + a(); }
return b();
`, time.Microsecond)

	records, _, _ := prof.collectRecords()
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		if cur.from < prev.from {
			t.Fatalf("records not sorted by textFrom ascending: %+v before %+v", prev, cur)
		}
		if cur.from == prev.from && cur.to > prev.to {
			t.Fatalf("records tied on textFrom must sort textTo descending: %+v before %+v", prev, cur)
		}
	}
}
