package extract

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// The normalizer turns a raw field mapping into a typed record with an
// explicit default per field. Generators follow no type discipline even when
// their output parses: numbers arrive as strings ("7/10"), lists as
// comma-joined strings, mappings as whatever. Downstream code reads only
// these records, never the raw mapping.

// RubricRecord is the normalized rubric sub-record.
type RubricRecord struct {
	Criteria           []string
	PointsPerCriterion map[string]float64
	TotalPoints        float64
	RequiredElements   []string
}

// QuestionRecord is the normalized shape of a question-generation response.
type QuestionRecord struct {
	BackgroundInfo  string
	KeyConcepts     []string
	Context         string
	QuestionText    string
	Difficulty      string // one of the three canonical labels, or empty
	DifficultyScore *float64
	Rubric          RubricRecord

	// Err and RawPreview are set when the extractor returned its sentinel.
	Err        string
	RawPreview string
}

// CriterionRecord is one normalized per-criterion grade entry.
type CriterionRecord struct {
	Criterion     string
	PointsAwarded float64
	MaxPoints     float64
	Explanation   string
	Satisfied     bool
}

// GradeRecord is the normalized shape of a grading response.
type GradeRecord struct {
	TotalPointsAwarded  float64
	TotalPointsPossible float64
	Percentage          float64
	State               string
	OverallFeedback     string
	CriterionGrades     []CriterionRecord
	Strengths           []string
	Weaknesses          []string
	Suggestions         []string

	Err        string
	RawPreview string
}

// NormalizeQuestion coerces a raw record into a QuestionRecord.
func NormalizeQuestion(rec map[string]any) QuestionRecord {
	q := QuestionRecord{
		BackgroundInfo:  asString(rec["background_info"]),
		KeyConcepts:     asStringList(rec["key_concepts"]),
		Context:         asString(rec["context"]),
		QuestionText:    strings.TrimSpace(asString(rec["question_text"])),
		Difficulty:      canonicalDifficulty(rec["difficulty"]),
		DifficultyScore: asOptFloat(rec["difficulty_score"]),
	}

	rubric := asMap(rec["rubric"])
	q.Rubric = RubricRecord{
		Criteria:           asStringList(rubric["criteria"]),
		PointsPerCriterion: asFloatMap(rubric["points_per_criterion"]),
		TotalPoints:        asFloat(rubric["total_points"], 0),
		RequiredElements:   asStringList(rubric["required_elements"]),
	}

	if IsSentinel(rec) {
		q.Err = asString(rec["error"])
		q.RawPreview = asString(rec["raw_response"])
	}
	return q
}

// NormalizeGrade coerces a raw record into a GradeRecord.
func NormalizeGrade(rec map[string]any) GradeRecord {
	g := GradeRecord{
		TotalPointsAwarded:  asFloat(rec["total_points_awarded"], 0),
		TotalPointsPossible: asFloat(rec["total_points_possible"], 0),
		Percentage:          asFloat(rec["percentage"], 0),
		State:               strings.TrimSpace(asString(rec["state"])),
	}

	expl := asMap(rec["explanation"])
	g.OverallFeedback = asString(expl["overall_feedback"])
	g.Strengths = asStringList(expl["strengths"])
	g.Weaknesses = asStringList(expl["weaknesses"])
	g.Suggestions = asStringList(expl["suggestions"])

	if items, ok := expl["criterion_grades"].([]any); ok {
		for _, item := range items {
			cg, ok := item.(map[string]any)
			if !ok {
				continue
			}
			g.CriterionGrades = append(g.CriterionGrades, CriterionRecord{
				Criterion:     asString(cg["criterion"]),
				PointsAwarded: asFloat(cg["points_awarded"], 0),
				MaxPoints:     asFloat(cg["max_points"], 0),
				Explanation:   asString(cg["explanation"]),
				Satisfied:     asBool(cg["satisfied"]),
			})
		}
	}

	if IsSentinel(rec) {
		g.Err = asString(rec["error"])
		g.RawPreview = asString(rec["raw_response"])
	}
	return g
}

var titleCaser = cases.Title(language.English)

// canonicalDifficulty trims and title-cases a difficulty label and accepts
// only the three known values; anything else is treated as absent.
func canonicalDifficulty(v any) string {
	s := titleCaser.String(strings.ToLower(strings.TrimSpace(asString(v))))
	switch s {
	case "Easy", "Medium", "Hard":
		return s
	}
	return ""
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return ""
}

// asStringList accepts a sequence or a comma-joined string. Anything else
// normalizes to an empty list.
func asStringList(v any) []string {
	switch val := v.(type) {
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

// unitSuffixes are trailing decorations generators attach to numbers.
var unitSuffixes = []string{"/10", "/100", "out of 10", "out of 100", "points", "pts", "%"}

// asFloat coerces numbers that may arrive as strings with unit suffixes.
func asFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		s := strings.TrimSpace(n)
		lower := strings.ToLower(s)
		for _, suffix := range unitSuffixes {
			if strings.HasSuffix(lower, suffix) {
				s = strings.TrimSpace(s[:len(s)-len(suffix)])
				break
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// asOptFloat is asFloat for optional fields: coercion failure means absent.
func asOptFloat(v any) *float64 {
	if v == nil {
		return nil
	}
	const marker = -1 << 30
	f := asFloat(v, marker)
	if f == marker {
		return nil
	}
	return &f
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	}
	return false
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asFloatMap(v any) map[string]float64 {
	out := make(map[string]float64)
	for key, val := range asMap(v) {
		out[key] = asFloat(val, 0)
	}
	return out
}
