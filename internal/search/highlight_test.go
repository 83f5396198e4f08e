package search

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildHighlightSource(t *testing.T) {
	cases := []struct {
		name   string
		fields HighlightFields
		want   string
	}{
		{
			name:   "priority order",
			fields: HighlightFields{Name: "Ada Lovelace", Title: "Engineer", Company: "Analytical Engines"},
			want:   "Ada Lovelace Engineer Analytical Engines",
		},
		{
			name:   "empties skipped",
			fields: HighlightFields{Name: "Ada", Title: "", Company: "Babbage & Co"},
			want:   "Ada Babbage & Co",
		},
		{name: "all empty", fields: HighlightFields{}, want: ""},
		{
			name:   "zero-like values kept",
			fields: HighlightFields{Name: "0", Company: "0"},
			want:   "0 0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildHighlightSource(tc.fields); got != tc.want {
				t.Fatalf("BuildHighlightSource = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildHighlightSourceCapsNotes(t *testing.T) {
	fields := HighlightFields{Name: "Ada", Notes: strings.Repeat("n", 1000)}
	got := BuildHighlightSource(fields)
	if len(got) > len("Ada ")+notesExcerptLimit {
		t.Fatalf("notes excerpt not capped, len = %d", len(got))
	}
}

func TestBuildHighlightSourceMultibyteNotesStayValidUTF8(t *testing.T) {
	fields := HighlightFields{Name: "Ada", Notes: strings.Repeat("世", 100)}
	got := BuildHighlightSource(fields)
	if !utf8.ValidString(got) {
		t.Fatalf("highlight source is invalid UTF-8: %q", got)
	}
	if len(got) > len("Ada ")+notesExcerptLimit {
		t.Fatalf("notes excerpt not capped, len = %d", len(got))
	}
}

func TestParseHighlights(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []Segment
	}{
		{
			name: "no markers",
			in:   "plain text",
			want: []Segment{{Text: "plain text"}},
		},
		{
			name: "single match",
			in:   "senior <b>golang</b> developer",
			want: []Segment{
				{Text: "senior "},
				{Text: "golang", Highlighted: true},
				{Text: " developer"},
			},
		},
		{
			name: "match at position zero",
			in:   "<b>golang</b> developer",
			want: []Segment{
				{Text: "golang", Highlighted: true},
				{Text: " developer"},
			},
		},
		{
			name: "trailing match",
			in:   "loves <b>golang</b>",
			want: []Segment{
				{Text: "loves "},
				{Text: "golang", Highlighted: true},
			},
		},
		{
			name: "multiple matches",
			in:   "<b>go</b> and <b>rust</b> shop",
			want: []Segment{
				{Text: "go", Highlighted: true},
				{Text: " and "},
				{Text: "rust", Highlighted: true},
				{Text: " shop"},
			},
		},
		{
			name: "empty marker pair dropped",
			in:   "a<b></b>b",
			want: []Segment{{Text: "a"}, {Text: "b"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseHighlights(tc.in, HighlightPre, HighlightEnd)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d segments %v, want %d", len(got), got, len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("segment %d = %+v, want %+v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestParseHighlightsReconstruction(t *testing.T) {
	inputs := []string{
		"",
		"no markers at all",
		"<b>one</b>",
		"pre <b>one</b> mid <b>two</b> post",
		"<b>a</b><b>b</b>",
	}
	for _, in := range inputs {
		segments := ParseHighlights(in, HighlightPre, HighlightEnd)
		var b strings.Builder
		for _, seg := range segments {
			b.WriteString(seg.Text)
		}
		stripped := strings.ReplaceAll(strings.ReplaceAll(in, HighlightPre, ""), HighlightEnd, "")
		if b.String() != stripped {
			t.Fatalf("reconstruction of %q = %q, want %q", in, b.String(), stripped)
		}
		for _, seg := range segments {
			if seg.Text == "" {
				t.Fatalf("empty segment emitted for %q: %v", in, segments)
			}
		}
	}
}

func TestParseHighlightsDanglingMarkerStaysLiteral(t *testing.T) {
	got := ParseHighlights("dangling <b>open", HighlightPre, HighlightEnd)
	if len(got) != 1 || got[0].Text != "dangling <b>open" || got[0].Highlighted {
		t.Fatalf("unpaired marker should stay plain text, got %v", got)
	}
}

func TestParseHighlightsCustomMarkers(t *testing.T) {
	got := ParseHighlights("a <mark>b</mark> c", "<mark>", "</mark>")
	want := []Segment{{Text: "a "}, {Text: "b", Highlighted: true}, {Text: " c"}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
