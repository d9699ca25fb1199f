package documents

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitTextShortStaysWhole(t *testing.T) {
	s := NewRecursiveSplitter(100, 10)
	got := s.SplitText("  a short paragraph  ")
	if diff := cmp.Diff([]string{"a short paragraph"}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitTextPrefersParagraphs(t *testing.T) {
	s := NewRecursiveSplitter(20, 0)
	got := s.SplitText("first block\n\nsecond block\n\nthird")
	want := []string{"first block", "second block", "third"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitTextRespectsSizeAndOverlap(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")
	s := NewRecursiveSplitter(50, 10)
	chunks := s.SplitText(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if runeLen(c) > 50 {
			t.Fatalf("chunk %d has %d runes", i, runeLen(c))
		}
	}
	// consecutive chunks share a tail/head word
	if !strings.HasPrefix(chunks[1], "word") || !strings.HasSuffix(chunks[0], "word") {
		t.Fatalf("unexpected boundaries: %q / %q", chunks[0], chunks[1])
	}
	total := 0
	for _, c := range chunks {
		total += len(strings.Fields(c))
	}
	if total <= 200 {
		t.Fatalf("overlap should repeat words, total=%d", total)
	}
}

func TestSplitTextFallsBackToCharacters(t *testing.T) {
	s := NewRecursiveSplitter(10, 0)
	chunks := s.SplitText(strings.Repeat("x", 35))
	want := []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}
	if diff := cmp.Diff(want, chunks); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitPagesNumbersAcrossDocument(t *testing.T) {
	meta := Meta{DocumentID: "doc 1", Title: "report.pdf"}
	pages := []Page{
		{Meta: meta, Number: 1, Text: "alpha\n\nbeta"},
		{Meta: meta, Number: 3, Text: "gamma"},
	}
	chunks := NewRecursiveSplitter(6, 0).SplitPages(pages)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %+v", chunks)
	}
	last := chunks[2]
	if last.ID != "doc%201#2" || last.Page != 3 || last.Index != 2 || last.Title != "report.pdf" {
		t.Fatalf("unexpected chunk: %+v", last)
	}
	if last.Checksum == "" {
		t.Fatal("missing checksum")
	}
}

func TestJoinPagesMarkers(t *testing.T) {
	got := JoinPages([]Page{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}})
	if got != "\n---PAGE 1---\na\n---PAGE 2---\nb" {
		t.Fatalf("got %q", got)
	}
}

func TestLoadPDFMissing(t *testing.T) {
	_, err := LoadPDF("does/not/exist.pdf", Meta{})
	if err == nil || !strings.Contains(err.Error(), ErrNotFound.Error()) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestChunkIDDistinguishesDocuments(t *testing.T) {
	seen := map[string]string{}
	for _, id := range []string{"report 1", "report/1", "report_1", "report%201", "report#1", ""} {
		got := ChunkID(id, 0)
		if prev, ok := seen[got]; ok {
			t.Fatalf("ChunkID(%q, 0) = %q collides with %q", id, got, prev)
		}
		seen[got] = id
	}
	if got := ChunkID("report 1", 4); got != ChunkID("report 1", 4) || got == ChunkID("report 1", 5) {
		t.Fatalf("ChunkID not stable per index: %q", got)
	}
}
