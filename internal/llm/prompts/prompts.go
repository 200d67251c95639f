// Package prompts builds the generator prompts for question creation and
// grading. The trailing instruction in both templates commands the generator
// to emit only a dictionary literal, first opening brace to last closing
// brace; generators frequently violate it anyway, which is why the extract
// package exists.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examforge/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	loadOnce     sync.Once
	loadErr      error
	questionTmpl *template.Template
	gradeTmpl    *template.Template
)

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

func load() error {
	loadOnce.Do(func() {
		parse := func(name string) *template.Template {
			if loadErr != nil {
				return nil
			}
			content, err := templateFS.ReadFile("templates/" + name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return nil
			}
			tmpl, err := template.New(name).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return nil
			}
			return tmpl
		}
		questionTmpl = parse("generate.txt")
		gradeTmpl = parse("grade.txt")
	})
	return loadErr
}

// QuestionData holds template data for question-generation prompts.
type QuestionData struct {
	Domain       string
	Instructions string
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	Domain           string
	QuestionText     string
	Criteria         string
	PointsPerCrit    string
	TotalPoints      float64
	RequiredElements string
	BackgroundInfo   string
	KeyConcepts      string
	Context          string
	Response         string
	TimeSpentSeconds float64
}

// BuildQuestionPrompt builds the prompt asking the generator for a new exam
// question with rubric and difficulty rating.
func BuildQuestionPrompt(domain, instructions string, targetDifficulty model.Difficulty) (string, error) {
	if err := load(); err != nil {
		return "", err
	}

	if strings.TrimSpace(instructions) == "" {
		instructions = "No specific instructions provided."
	}
	if targetDifficulty != "" {
		instructions += fmt.Sprintf("\n\nIMPORTANT: Generate a question with %s difficulty level. "+
			"Adjust the complexity, depth of analysis required, and conceptual sophistication accordingly.",
			targetDifficulty)
	}

	var buf bytes.Buffer
	err := questionTmpl.Execute(&buf, QuestionData{
		Domain:       domain,
		Instructions: instructions,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildGradingPrompt builds the prompt asking the generator to grade a
// student response against the question's rubric.
func BuildGradingPrompt(q model.Question, resp model.StudentResponse) (string, error) {
	if err := load(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err := gradeTmpl.Execute(&buf, GradeData{
		Domain:           q.Domain,
		QuestionText:     q.QuestionText,
		Criteria:         bulletList(q.Rubric.Criteria),
		PointsPerCrit:    pointsList(q.Rubric.Criteria, q.Rubric.PointsPerCriterion),
		TotalPoints:      q.Rubric.TotalPoints,
		RequiredElements: bulletList(q.Rubric.RequiredElements),
		BackgroundInfo:   q.DomainInfo.BackgroundInfo,
		KeyConcepts:      bulletList(q.DomainInfo.KeyConcepts),
		Context:          q.DomainInfo.Context,
		Response:         SanitizeResponse(resp.ResponseText),
		TimeSpentSeconds: resp.TimeSpentSeconds,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func bulletList(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// pointsList renders the per-criterion point allocations in rubric order so
// prompts are stable across runs.
func pointsList(criteria []string, points map[string]float64) string {
	var sb strings.Builder
	for _, c := range criteria {
		sb.WriteString(fmt.Sprintf("- %s: %g points\n", c, points[c]))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SanitizeResponse strips injection-prone tags from a student answer and
// caps its length before it is embedded into a prompt.
func SanitizeResponse(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
