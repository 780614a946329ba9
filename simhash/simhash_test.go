package simhash

import (
	"testing"

	"github.com/use-agent/scrollsnap/models"
)

func TestFingerprint_Deterministic(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("identical texts produced different fingerprints")
	}
}

func TestFingerprint_SimilarTexts(t *testing.T) {
	a := Fingerprint("the quick brown fox jumps over the lazy dog")
	b := Fingerprint("the quick brown fox leaps over the lazy dog")

	if dist := Distance(a, b); dist > 10 {
		t.Errorf("similar texts have distance %d", dist)
	}
}

func TestFingerprint_DifferentTexts(t *testing.T) {
	a := Fingerprint("the quick brown fox jumps over the lazy dog")
	b := Fingerprint("completely unrelated content about quantum physics and mathematics")

	if dist := Distance(a, b); dist < 5 {
		t.Errorf("unrelated texts have distance %d", dist)
	}
}

func TestFingerprint_Empty(t *testing.T) {
	for _, in := range []string{"", "   \t\n  "} {
		if fp := Fingerprint(in); fp != 0 {
			t.Errorf("Fingerprint(%q) = %064b, want 0", in, fp)
		}
	}
	if Tokens(nil) != 0 {
		t.Error("Tokens(nil) != 0")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilar(t *testing.T) {
	a := Fingerprint("the quick brown fox")
	b := Fingerprint("a completely different text about nothing related")
	dist := Distance(a, b)

	if !Similar(a, a, 0) {
		t.Error("fingerprint not similar to itself")
	}
	if dist > 0 && Similar(a, b, dist-1) {
		t.Errorf("similar below distance %d", dist)
	}
	if !Similar(a, b, dist) {
		t.Errorf("not similar at threshold equal to distance %d", dist)
	}
}

func TestMarkup_IgnoresText(t *testing.T) {
	a := Markup(`<html><body><div><h1>Hello</h1><p>World</p></div></body></html>`)
	b := Markup(`<html><body><div><h1>Hi</h1><p>Earth</p></div></body></html>`)
	if a != b {
		t.Errorf("same structure differs by %d bits", Distance(a, b))
	}
}

func TestMarkup_StructureChanges(t *testing.T) {
	a := Markup(`<div><div><div><p>Deep</p></div></div></div>`)
	b := Markup(`<div><p>Shallow</p></div>`)
	if a == b {
		t.Error("different nesting produced the same fingerprint")
	}
	if Markup("plain text only") != 0 {
		t.Error("text without tags should fingerprint to 0")
	}
	if Markup("<br/>") == 0 {
		t.Error("single tag should fingerprint to non-zero")
	}
}

func TestExtractTags(t *testing.T) {
	got := extractTags(`<html><head><title>T</title></head><body><div><p>x</p></div></body></html>`)
	want := []string{"html", "head", "title", "body", "div", "p"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tag[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestShingles(t *testing.T) {
	got := shingles([]string{"a", "b", "c", "d"}, 3)
	if len(got) != 2 || got[0] != "a_b_c" || got[1] != "b_c_d" {
		t.Errorf("shingles = %v", got)
	}
	if shingles([]string{"a", "b"}, 3) != nil {
		t.Error("expected nil for fewer tokens than n")
	}
}

func TestViewport(t *testing.T) {
	rec := func(id, text, x string) models.Record {
		return models.NewRecord("webElementId", id, "xpath", "//p", "text", text, "x", x)
	}

	a := Viewport([]models.Record{rec("1", "a", "0"), rec("2", "b", "0")})
	moved := Viewport([]models.Record{rec("1", "a", "40"), rec("2", "b", "40")})
	changed := Viewport([]models.Record{rec("3", "c", "0"), rec("4", "d", "0")})

	if a != moved {
		t.Error("geometry changed the viewport fingerprint")
	}
	if a == changed {
		t.Error("different elements produced the same viewport fingerprint")
	}
	if Viewport(nil) != 0 {
		t.Error("empty viewport should fingerprint to 0")
	}
}
