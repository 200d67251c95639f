// Package extract recovers structured records from raw generator output.
//
// Generators are asked to answer with a single dictionary literal, nothing
// else. In practice they wrap it in prose, code fences, single quotes, or
// break the brace nesting outright. Extract runs an ordered chain of
// strategies, cheapest and most precise first, and always produces a mapping:
// on total failure the result is a sentinel record carrying an "error" field
// plus safe defaults for every field downstream code reads.
package extract

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// previewLimit bounds the raw-response preview carried in sentinel records.
const previewLimit = 1000

var (
	introRegex = regexp.MustCompile(`(?is)^(?:here is|here's|sure, here is|sure, here's|i'll|i will|let me|the dictionary|the response).*?(\{.*)$`)
	fenceRegex = regexp.MustCompile("(?is)```(?:python|json)?[ \t]*\n?(.*?)```")
	// Balanced-looking {...} spans tolerating one nesting level.
	braceRegex = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// anchorKeys are field names expected in generator records; they anchor the
// last-resort recovery scan.
var anchorKeys = []string{
	"total_points_awarded", "total_points_possible", "percentage", "state",
	"explanation", "question_text", "background_info", "key_concepts",
	"rubric", "difficulty",
}

// instructionFragments are pieces of the prompt's trailing format instruction
// that generators sometimes echo back; they are stripped from error previews.
var instructionFragments = []string{
	" and end with the closing brace",
	"Start your response directly with the opening brace",
	"Do not use markdown code blocks",
	"CRITICAL:",
}

// Record extracts a field mapping from arbitrary generator output.
// It never fails: unusable input yields the sentinel record (see Sentinel).
func Record(text string) map[string]any {
	original := text
	text = strings.TrimSpace(text)

	text = stripPreamble(text)
	text = unfence(text)

	if m := tryParse(text); m != nil {
		return m
	}

	// Walk braces from the first opening one. This runs before the span
	// regex: the regex tolerates one nesting level and would hand back a
	// parseable inner sub-map (a rubric, an explanation) from a deeper
	// record, losing the top-level fields.
	if m := tryBraceCount(text, strings.Index(text, "{")); m != nil {
		return m
	}

	// Scan for balanced-looking brace spans, longest first. Recovers records
	// whose leading brace opens an unbalanced span.
	if m := tryBraceSpans(text); m != nil {
		return m
	}

	// Rewrite single quotes and Python-style keywords, then retry strict.
	if m := tryStrict(normalizeQuotes(text)); m != nil {
		return m
	}

	// Anchor on a known field name and walk braces from the nearest
	// preceding opening brace.
	if m := tryKeywordAnchor(text); m != nil {
		return m
	}

	slog.Debug("record extraction failed",
		"length", len(original),
		"first_brace", strings.Index(original, "{"),
		"last_brace", strings.LastIndex(original, "}"))

	return Sentinel(original)
}

// stripPreamble removes leading conversational text before the first opening
// brace. A recognized introductory phrase is preferred; otherwise everything
// before the first literal brace goes.
func stripPreamble(text string) string {
	if m := introRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if i := strings.Index(text, "{"); i > 0 {
		return text[i:]
	}
	return text
}

// unfence extracts the content of a markdown code fence. With several fenced
// blocks the longest wins; with unpaired delimiters it falls back to slicing
// between the first and second delimiter lines.
func unfence(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	if matches := fenceRegex.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		longest := ""
		for _, m := range matches {
			if len(m[1]) > len(longest) {
				longest = m[1]
			}
		}
		return strings.TrimSpace(longest)
	}

	lines := strings.Split(text, "\n")
	start, end := 0, len(lines)
	for i, line := range lines {
		if strings.Contains(line, "```") {
			if start == 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start > 0 && end < len(lines) {
		return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	}
	return text
}

// tryParse attempts the tolerant literal parse, then the strict JSON parse.
func tryParse(text string) map[string]any {
	if v, err := parseLiteral(text); err == nil {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return tryStrict(text)
}

func tryStrict(text string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

func tryBraceSpans(text string) map[string]any {
	spans := braceRegex.FindAllString(text, -1)
	sort.Slice(spans, func(i, j int) bool { return len(spans[i]) > len(spans[j]) })
	for _, span := range spans {
		if m := tryParse(span); m != nil {
			return m
		}
	}
	return nil
}

// tryBraceCount slices out the span from the opening brace at start to its
// matching closing brace and parses it, retrying with quote normalization.
func tryBraceCount(text string, start int) map[string]any {
	if start < 0 {
		return nil
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				span := text[start : i+1]
				if m := tryParse(span); m != nil {
					return m
				}
				return tryStrict(normalizeQuotes(span))
			}
		}
	}
	return nil
}

func tryKeywordAnchor(text string) map[string]any {
	lower := strings.ToLower(text)
	for _, key := range anchorKeys {
		idx := strings.Index(lower, key)
		if idx < 0 {
			continue
		}
		brace := strings.LastIndex(text[:idx], "{")
		if brace < 0 {
			return nil
		}
		return tryBraceCount(text, brace)
	}
	return nil
}

// normalizeQuotes rewrites single-quoted literals and Python-style keywords
// into strict JSON spellings. Deliberately naive: it runs late in the chain,
// after precise strategies have failed.
func normalizeQuotes(text string) string {
	r := strings.NewReplacer("'", `"`, "None", "null", "True", "true", "False", "false")
	return r.Replace(text)
}

// Sentinel builds the error record returned when no strategy produced a
// mapping. Every field a blind consumer reads is present with a safe default,
// so callers only need to check the "error" key.
func Sentinel(raw string) map[string]any {
	return map[string]any{
		"error":                 "Could not parse the generated response as a record. The model returned an invalid format.",
		"raw_response":          Preview(raw),
		"total_points_awarded":  0.0,
		"total_points_possible": 100.0,
		"percentage":            0.0,
		"state":                 "Error",
		"explanation": map[string]any{
			"overall_feedback": "Error: the model response could not be parsed. Please try submitting your response again.",
			"criterion_grades": []any{},
			"strengths":        []any{},
			"weaknesses":       []any{"Unable to parse model response - format error"},
			"suggestions": []any{
				"Please try resubmitting your response",
				"If the problem persists, contact support",
			},
		},
	}
}

// Preview returns a bounded excerpt of raw generator output suitable for
// error reporting, with echoed instruction-template fragments cut off.
// Truncation never splits a multi-byte rune.
func Preview(raw string) string {
	preview := raw
	if len(preview) > previewLimit {
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	for _, fragment := range instructionFragments {
		if idx := strings.Index(preview, fragment); idx > 0 {
			preview = strings.TrimSpace(preview[:idx])
		}
	}
	return preview
}

// IsSentinel reports whether rec is an extraction-failure record.
func IsSentinel(rec map[string]any) bool {
	_, ok := rec["error"]
	return ok
}
