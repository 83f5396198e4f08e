package search

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Marker tags requested from backends when highlighting. The Postgres
// headline generator and Meilisearch both honor configurable tags, so the
// parser only ever sees this one pair.
const (
	HighlightPre = "<b>"
	HighlightEnd = "</b>"
)

const notesExcerptLimit = 200

// HighlightFields are the weighted fields whose text feeds the backend's
// snippet generator, in priority order.
type HighlightFields struct {
	Name    string
	AltName string
	Title   string
	Company string
	Notes   string
}

// BuildHighlightSource concatenates the non-empty fields in priority order,
// space-joined, with the notes excerpt capped. The result is what the
// backend's headline generator runs over.
func BuildHighlightSource(f HighlightFields) string {
	notes := f.Notes
	if len(notes) > notesExcerptLimit {
		notes = notes[:notesExcerptLimit]
		// never cut in the middle of a rune
		for len(notes) > 0 {
			r, size := utf8.DecodeLastRuneInString(notes)
			if r == utf8.RuneError && size == 1 {
				notes = notes[:len(notes)-1]
				continue
			}
			break
		}
	}
	parts := make([]string, 0, 5)
	for _, v := range []string{f.Name, f.AltName, f.Title, f.Company, notes} {
		if isPresent(v) {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	return strings.Join(parts, " ")
}

var (
	highlightRe   = map[string]*regexp.Regexp{}
	highlightReMu sync.Mutex
)

func markerPattern(pre, end string) *regexp.Regexp {
	key := pre + "\x00" + end
	highlightReMu.Lock()
	defer highlightReMu.Unlock()
	if re, ok := highlightRe[key]; ok {
		return re
	}
	re := regexp.MustCompile(regexp.QuoteMeta(pre) + `(.*?)` + regexp.QuoteMeta(end))
	highlightRe[key] = re
	return re
}

// ParseHighlights splits backend headline output into alternating plain and
// highlighted segments. Marker pairs are single-level and non-overlapping.
// Concatenating segment text reconstructs the input with the markers
// removed; empty segments are never emitted, so a match at position zero
// produces no leading plain segment. Unpaired markers stay literal.
func ParseHighlights(s, pre, end string) []Segment {
	if s == "" {
		return nil
	}
	matches := markerPattern(pre, end).FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return []Segment{{Text: s}}
	}

	segments := make([]Segment, 0, 2*len(matches)+1)
	last := 0
	for _, m := range matches {
		if m[0] > last {
			segments = append(segments, Segment{Text: s[last:m[0]]})
		}
		if m[3] > m[2] {
			segments = append(segments, Segment{Text: s[m[2]:m[3]], Highlighted: true})
		}
		last = m[1]
	}
	if last < len(s) {
		segments = append(segments, Segment{Text: s[last:]})
	}
	return segments
}
