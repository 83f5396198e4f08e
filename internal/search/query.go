package search

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxQueryLength     = 500
	maxSimpleTokens    = 10
	maxProximityTokens = 5
	maxMustTerms       = 5
	maxShouldTerms     = 5
	maxMustNotTerms    = 3
)

// Sanitize strips characters that have no business in a user query. Control
// bytes are treated as token separators rather than deleted, so "a\x00b"
// becomes "a b", not "ab"; quotes, percent signs, and angle brackets are
// dropped outright. Internal whitespace collapses to single spaces and the
// result is truncated to the query length cap. Empty or invalid input
// yields "".
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte(' ')
		case r == '\'' || r == '"' || r == '`' || r == '%' || r == '<' || r == '>':
			// dropped outright
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > maxQueryLength {
		out = out[:maxQueryLength]
		// never cut in the middle of a rune
		for len(out) > 0 {
			r, size := utf8.DecodeLastRuneInString(out)
			if r == utf8.RuneError && size == 1 {
				out = out[:len(out)-1]
				continue
			}
			break
		}
		out = strings.TrimSpace(out)
	}
	return out
}

// escapeTerm makes a literal token safe inside a compiled expression:
// backslash and the reserved operator characters are backslash-escaped and
// single quotes are doubled, so a term can never be read as an operator.
var termEscaper = strings.NewReplacer(
	`\`, `\\`,
	`&`, `\&`,
	`|`, `\|`,
	`!`, `\!`,
	`(`, `\(`,
	`)`, `\)`,
	`<`, `\<`,
	`>`, `\>`,
	`:`, `\:`,
	`'`, `\''`,
)

func escapeTerm(term string) string {
	return termEscaper.Replace(term)
}

// Validate reports whether expr is a structurally sound compiled query:
// non-empty, within the length cap, balanced parentheses, no doubled
// operators, and no dangling binary operator at either end. Escaped
// characters are literal and never count as operators. Callers fall back to
// the simple compiler on failure instead of surfacing an error.
func Validate(expr string) bool {
	if expr == "" || len(expr) > maxQueryLength {
		return false
	}

	depth := 0
	escaped := false
	var prevOp byte // last unescaped operator, reset by any literal
	firstLiteral := true
	var lastUnescaped byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if escaped {
			escaped = false
			prevOp = 0
			firstLiteral = false
			lastUnescaped = 0
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		switch c {
		case '(':
			depth++
			prevOp = 0
		case ')':
			depth--
			if depth < 0 {
				return false
			}
			prevOp = 0
		case '&', '|', '!':
			if firstLiteral && c != '!' {
				return false
			}
			if prevOp == c {
				return false
			}
			prevOp = c
		case ' ':
			// whitespace never separates doubled operators
			continue
		default:
			prevOp = 0
			firstLiteral = false
		}
		lastUnescaped = c
	}
	if escaped || depth != 0 {
		return false
	}
	switch lastUnescaped {
	case '&', '|', '!', '<', '>':
		return false
	}
	return true
}

// ComplexityScore estimates how much structure a raw query carries, in
// [0, 1]. The empty string scores 0. Purely informational: it is reported
// in result metadata and never gates compilation.
func ComplexityScore(raw string) float64 {
	s := Sanitize(raw)
	if s == "" {
		return 0
	}
	tokens := strings.Fields(s)

	lengthPart := float64(len(s)) / float64(maxQueryLength)
	if lengthPart > 1 {
		lengthPart = 1
	}
	tokenPart := float64(len(tokens)) / float64(maxSimpleTokens)
	if tokenPart > 1 {
		tokenPart = 1
	}
	operators := 0
	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		if upper == "AND" || upper == "OR" || upper == "NOT" ||
			strings.HasPrefix(tok, "+") || strings.HasPrefix(tok, "-") {
			operators++
		}
	}
	opPart := float64(operators) / 4
	if opPart > 1 {
		opPart = 1
	}

	score := 0.3*lengthPart + 0.3*tokenPart + 0.4*opPart
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// CompileInput carries everything a compiler strategy may need. Raw is the
// unsanitized user string; Advanced is only consulted by ModeAdvanced.
type CompileInput struct {
	Raw      string
	Distance int
	Advanced *AdvancedQuery
}

type compileFunc func(CompileInput) string

var compilers = map[Mode]compileFunc{
	ModeSimple:    compileSimple,
	ModeBoolean:   compileBoolean,
	ModeProximity: compileProximity,
	ModeAdvanced:  compileAdvanced,
}

// Compile turns user input into a compiled query expression using the
// strategy for mode. An unrecognized mode compiles as simple; a malformed
// free-text query never errors, it degrades.
func Compile(mode Mode, in CompileInput) string {
	fn, ok := compilers[mode]
	if !ok {
		fn = compileSimple
	}
	return fn(in)
}

// compileSimple ANDs every whitespace-separated token, capped at
// maxSimpleTokens. A single token comes back as just that escaped token.
func compileSimple(in CompileInput) string {
	tokens := strings.Fields(Sanitize(in.Raw))
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) > maxSimpleTokens {
		tokens = tokens[:maxSimpleTokens]
	}
	escaped := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		escaped = append(escaped, escapeTerm(tok))
	}
	return strings.Join(escaped, " & ")
}

// compileBoolean maps the words AND/OR/NOT (any case) and leading +/- word
// prefixes onto the operator set, ANDing bare adjacent terms. The output is
// validated; anything structurally unsound falls back to a simple compile of
// the same sanitized input.
func compileBoolean(in CompileInput) string {
	sanitized := Sanitize(in.Raw)
	if sanitized == "" {
		return ""
	}

	var parts []string
	pendingOp := ""
	pendingNot := false
	appendTerm := func(term string) {
		if term == "" {
			return
		}
		if pendingNot {
			term = "!" + term
			pendingNot = false
		}
		if len(parts) > 0 {
			op := pendingOp
			if op == "" {
				op = "&"
			}
			parts = append(parts, op)
		}
		pendingOp = ""
		parts = append(parts, term)
	}

	for _, tok := range strings.Fields(sanitized) {
		switch strings.ToUpper(tok) {
		case "AND":
			pendingOp = "&"
		case "OR":
			pendingOp = "|"
		case "NOT":
			pendingNot = true
		default:
			switch {
			case strings.HasPrefix(tok, "+"):
				pendingOp = "&"
				appendTerm(escapeTerm(strings.TrimPrefix(tok, "+")))
			case strings.HasPrefix(tok, "-"):
				pendingOp = "&"
				pendingNot = true
				appendTerm(escapeTerm(strings.TrimPrefix(tok, "-")))
			default:
				appendTerm(escapeTerm(tok))
			}
		}
	}

	compiled := strings.Join(parts, " ")
	if !Validate(compiled) {
		return compileSimple(CompileInput{Raw: sanitized})
	}
	return compiled
}

// compileProximity joins tokens with the adjacency operator, or with <N>
// when a positive distance is given. Fewer than two tokens degrade to the
// single escaped term.
func compileProximity(in CompileInput) string {
	tokens := strings.Fields(Sanitize(in.Raw))
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) > maxProximityTokens {
		tokens = tokens[:maxProximityTokens]
	}
	escaped := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		escaped = append(escaped, escapeTerm(tok))
	}
	if len(escaped) == 1 {
		return escaped[0]
	}
	joiner := " <-> "
	if in.Distance > 0 {
		joiner = fmt.Sprintf(" <%d> ", in.Distance)
	}
	return strings.Join(escaped, joiner)
}

// compileAdvanced renders the structured term groups. Each group is bounded
// and parenthesized; the optional free-text q is simple-compiled and
// prepended. No usable terms at all compiles to "", which the service
// treats as match-none.
func compileAdvanced(in CompileInput) string {
	adv := in.Advanced
	if adv == nil {
		adv = &AdvancedQuery{}
	}

	var groups []string
	if q := compileSimple(CompileInput{Raw: firstNonEmpty(adv.Q, in.Raw)}); q != "" {
		groups = append(groups, q)
	}
	if must := sanitizeTerms(adv.MustHave, maxMustTerms); len(must) > 0 {
		groups = append(groups, "("+strings.Join(must, " & ")+")")
	}
	if should := sanitizeTerms(adv.ShouldHave, maxShouldTerms); len(should) > 0 {
		groups = append(groups, "("+strings.Join(should, " | ")+")")
	}
	if not := sanitizeTerms(adv.MustNotHave, maxMustNotTerms); len(not) > 0 {
		groups = append(groups, "!("+strings.Join(not, " | ")+")")
	}
	return strings.Join(groups, " & ")
}

// sanitizeTerms sanitizes and escapes each term, drops empties, and bounds
// the group size.
func sanitizeTerms(terms []string, limit int) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		clean := Sanitize(term)
		if clean == "" {
			continue
		}
		// a multi-word term collapses to its tokens ANDed inside the group
		fields := strings.Fields(clean)
		escaped := make([]string, 0, len(fields))
		for _, f := range fields {
			escaped = append(escaped, escapeTerm(f))
		}
		out = append(out, strings.Join(escaped, " & "))
		if len(out) == limit {
			break
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// isPresent reports whether an optional entity field carries a value worth
// indexing. Only genuinely empty strings are absent; falsy-but-meaningful
// values like "0" are kept.
func isPresent(value string) bool {
	return strings.IndexFunc(value, func(r rune) bool {
		return !unicode.IsSpace(r)
	}) >= 0
}
