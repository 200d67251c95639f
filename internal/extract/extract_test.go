package extract

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRecordWellFormed(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]any
	}{
		{
			"plain json",
			`{"a": 1, "b": "two"}`,
			map[string]any{"a": 1.0, "b": "two"},
		},
		{
			"single-quoted literal",
			`{'a': 1, 'b': 'two'}`,
			map[string]any{"a": 1.0, "b": "two"},
		},
		{
			"python keywords",
			`{'ok': True, 'bad': False, 'missing': None}`,
			map[string]any{"ok": true, "bad": false, "missing": nil},
		},
		{
			"fenced python block",
			"```python\n{'a': 1}\n```",
			map[string]any{"a": 1.0},
		},
		{
			"fenced json block",
			"```json\n{\"a\": 1}\n```",
			map[string]any{"a": 1.0},
		},
		{
			"prefers longest fenced block",
			"Here is a draft {incomplete and the final version:\n```json\n{\"a\": 1}\n```\n```json\n{\"a\": 1, \"b\": 2}\n```",
			map[string]any{"a": 1.0, "b": 2.0},
		},
		{
			"nested rubric",
			`{"question_text": "x", "rubric": {"criteria": ["c1"], "total_points": 10}}`,
			map[string]any{
				"question_text": "x",
				"rubric":        map[string]any{"criteria": []any{"c1"}, "total_points": 10.0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Record(tt.text)
			if IsSentinel(got) {
				t.Fatalf("Record returned sentinel: %v", got["error"])
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Record() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRecordPreambleAndNoise(t *testing.T) {
	text := `Sure, here you go: {"question_text": "x", "rubric": {"criteria": [], "points_per_criterion": {}, "total_points": 0, "required_elements": []}}` +
		"\nLet me know if you need anything else!"

	got := Record(text)
	if IsSentinel(got) {
		t.Fatalf("Record returned sentinel: %v", got["error"])
	}
	if got["question_text"] != "x" {
		t.Errorf("question_text = %v, want x", got["question_text"])
	}
	if _, ok := got["rubric"].(map[string]any); !ok {
		t.Errorf("rubric is %T, want map", got["rubric"])
	}
}

func TestRecordBraceCounting(t *testing.T) {
	// Three nesting levels defeat the span regex; the brace walk must
	// recover the full record despite single quotes and trailing prose.
	text := `Here is the grade: {'total_points_awarded': 28.5, 'explanation': ` +
		`{'criterion_grades': [{'criterion': 'depth', 'satisfied': True}]}} Hope this helps!`

	got := Record(text)
	if IsSentinel(got) {
		t.Fatalf("Record returned sentinel: %v", got["error"])
	}
	if got["total_points_awarded"] != 28.5 {
		t.Errorf("total_points_awarded = %v, want 28.5", got["total_points_awarded"])
	}
	expl, ok := got["explanation"].(map[string]any)
	if !ok {
		t.Fatalf("explanation is %T, want map", got["explanation"])
	}
	if _, ok := expl["criterion_grades"].([]any); !ok {
		t.Errorf("criterion_grades is %T, want list", expl["criterion_grades"])
	}
}

func TestRecordOuterRecordWins(t *testing.T) {
	// The rubric sub-map parses on its own; the full record must win over it.
	text := `{"question_text": "x", "rubric": {"criteria": ["c1"], ` +
		`"points_per_criterion": {"c1": 5.0}, "total_points": 5.0}} trailing note`

	got := Record(text)
	if IsSentinel(got) {
		t.Fatalf("Record returned sentinel: %v", got["error"])
	}
	if got["question_text"] != "x" {
		t.Errorf("question_text = %v, want x (got an inner fragment?)", got["question_text"])
	}
	rubric, ok := got["rubric"].(map[string]any)
	if !ok {
		t.Fatalf("rubric is %T, want map", got["rubric"])
	}
	if rubric["total_points"] != 5.0 {
		t.Errorf("total_points = %v, want 5", rubric["total_points"])
	}
}

func TestRecordUnbalancedPrefix(t *testing.T) {
	// The first brace opens an unbalanced span; the record embedded after it
	// must still be recovered.
	text := `{broken {"percentage": 90.0, "state": "P"}`

	got := Record(text)
	if IsSentinel(got) {
		t.Fatalf("Record returned sentinel: %v", got["error"])
	}
	if got["percentage"] != 90.0 {
		t.Errorf("percentage = %v, want 90", got["percentage"])
	}
	if got["state"] != "P" {
		t.Errorf("state = %v, want P", got["state"])
	}
}

func TestKeywordAnchor(t *testing.T) {
	t.Run("recovers from anchored brace", func(t *testing.T) {
		text := `{broken {"percentage": 90.0, "state": "P"}`
		got := tryKeywordAnchor(text)
		if got == nil {
			t.Fatal("tryKeywordAnchor returned nil")
		}
		if got["percentage"] != 90.0 {
			t.Errorf("percentage = %v, want 90", got["percentage"])
		}
	})

	t.Run("no anchor key", func(t *testing.T) {
		if got := tryKeywordAnchor("{nothing recognizable here}"); got != nil {
			t.Errorf("tryKeywordAnchor = %#v, want nil", got)
		}
	})

	t.Run("anchor without preceding brace", func(t *testing.T) {
		if got := tryKeywordAnchor(`percentage: 90`); got != nil {
			t.Errorf("tryKeywordAnchor = %#v, want nil", got)
		}
	})
}

func TestRecordTotality(t *testing.T) {
	inputs := []string{
		"",
		"I cannot help with that.",
		"\x00\x01\x02binary\xffnoise",
		"{{{{{{{{",
		"}}}}}}}}",
		strings.Repeat("{", 5000),
		"``````",
		"{'unterminated': ",
		"null",
		"[1, 2, 3]",
		`"just a string"`,
	}

	for _, input := range inputs {
		got := Record(input)
		if got == nil {
			t.Fatalf("Record(%q) returned nil", input)
		}
		if !IsSentinel(got) {
			t.Errorf("Record(%q) should be sentinel, got %#v", input, got)
		}
	}
}

func TestRecordSentinelShape(t *testing.T) {
	got := Record("I cannot help with that.")

	if !IsSentinel(got) {
		t.Fatal("expected sentinel record")
	}
	for _, key := range []string{"error", "raw_response", "total_points_awarded",
		"total_points_possible", "percentage", "state", "explanation"} {
		if _, ok := got[key]; !ok {
			t.Errorf("sentinel missing key %q", key)
		}
	}
	if got["state"] != "Error" {
		t.Errorf("state = %v, want Error", got["state"])
	}
	expl, ok := got["explanation"].(map[string]any)
	if !ok {
		t.Fatalf("explanation is %T, want map", got["explanation"])
	}
	for _, key := range []string{"overall_feedback", "criterion_grades",
		"strengths", "weaknesses", "suggestions"} {
		if _, ok := expl[key]; !ok {
			t.Errorf("explanation missing key %q", key)
		}
	}
	if got["raw_response"] != "I cannot help with that." {
		t.Errorf("raw_response = %v", got["raw_response"])
	}
}

func TestRecordRoundTrip(t *testing.T) {
	texts := []string{
		`{"a": 1, "nested": {"b": [1, 2, 3]}, "s": "text"}`,
		`Sure, here is the result: {'total_points_awarded': 5.0, 'state': 'P'}`,
	}

	for _, text := range texts {
		first := Record(text)
		if IsSentinel(first) {
			t.Fatalf("Record(%q) returned sentinel", text)
		}
		data, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		second := Record(string(data))
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip mismatch: %#v vs %#v", first, second)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Run("bounded length", func(t *testing.T) {
		long := strings.Repeat("x", 3000)
		if got := Preview(long); len(got) != previewLimit {
			t.Errorf("preview length = %d, want %d", len(got), previewLimit)
		}
	})

	t.Run("keeps runes intact at the cut", func(t *testing.T) {
		// The leading byte offsets every two-byte rune so a continuation
		// byte lands exactly on the limit.
		long := "x" + strings.Repeat("é", previewLimit)
		got := Preview(long)
		if !utf8.ValidString(got) {
			t.Fatalf("preview is not valid UTF-8 near the cut: %q", got[len(got)-4:])
		}
		if len(got) != previewLimit-1 {
			t.Errorf("preview length = %d, want %d", len(got), previewLimit-1)
		}
	})

	t.Run("strips instruction fragments", func(t *testing.T) {
		raw := "some output CRITICAL: You MUST return ONLY a valid dictionary"
		got := Preview(raw)
		if strings.Contains(got, "CRITICAL") {
			t.Errorf("preview still contains instruction fragment: %q", got)
		}
		if got != "some output" {
			t.Errorf("preview = %q, want %q", got, "some output")
		}
	})
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    any
		wantErr bool
	}{
		{"empty object", "{}", map[string]any{}, false},
		{"trailing comma", "{'a': 1,}", map[string]any{"a": 1.0}, false},
		{"escapes", `{'a': 'it\'s'}`, map[string]any{"a": "it's"}, false},
		{"unicode escape", `{"a": "é"}`, map[string]any{"a": "é"}, false},
		{"negative number", "{'n': -2.5}", map[string]any{"n": -2.5}, false},
		{"trailing prose", "{'a': 1} extra", nil, true},
		{"unterminated", "{'a': ", nil, true},
		{"bare word", "hello", nil, true},
		{"non-string key", "{1: 2}", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLiteral(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseLiteral(%q) = %v, want error", tt.text, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLiteral(%q): %v", tt.text, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseLiteral(%q) = %#v, want %#v", tt.text, got, tt.want)
			}
		})
	}
}
