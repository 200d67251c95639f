package exam

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pavelanni/examforge/internal/extract"
	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/model"
)

// Grader grades student responses and reconciles the generator's arithmetic
// against the question rubric.
type Grader struct {
	llm TextGenerator
	cfg model.ServiceConfig
}

// NewGrader creates a grader.
func NewGrader(llm TextGenerator, cfg model.ServiceConfig) *Grader {
	return &Grader{llm: llm, cfg: cfg}
}

// GradeResponse grades a student's response to a question. It never fails:
// a backend error or an unparseable response produces an Error-state result
// with actionable feedback, so one bad generation cannot take down an exam
// in progress.
func (g *Grader) GradeResponse(ctx context.Context, q model.Question, resp model.StudentResponse) model.GradeResult {
	prompt, err := prompts.BuildGradingPrompt(q, resp)
	if err != nil {
		return errorResult(q, fmt.Sprintf("Unable to prepare the grading request: %v.", err))
	}

	raw, err := g.llm.Generate(ctx, prompt, g.cfg.GradingTemperature, g.cfg.MaxTokens)
	if err != nil {
		slog.Error("grading call failed", "question_id", q.QuestionID, "error", err)
		return errorResult(q, fmt.Sprintf("Unable to grade the response: %v. Please try submitting again.", err))
	}

	rec := extract.NormalizeGrade(extract.Record(raw))
	return g.Reconcile(rec, q)
}

// Reconcile turns a normalized grading record into a result that is
// numerically consistent with the question's rubric, which is the ground
// truth regardless of what the generator reported.
func (g *Grader) Reconcile(rec extract.GradeRecord, q model.Question) model.GradeResult {
	if rec.Err != "" {
		return errorResult(q, fmt.Sprintf(
			"Unable to parse the grading response: %s Please try submitting again or contact support if the issue persists.",
			rec.Err))
	}

	possible := q.Rubric.TotalPoints
	awarded := rec.TotalPointsAwarded
	if awarded < 0 {
		awarded = 0
	}
	if possible > 0 && awarded > possible {
		awarded = possible
	}

	grades := make([]model.CriterionGrade, 0, len(rec.CriterionGrades))
	for _, cg := range rec.CriterionGrades {
		grades = append(grades, model.CriterionGrade{
			Criterion:     cg.Criterion,
			PointsAwarded: cg.PointsAwarded,
			MaxPoints:     cg.MaxPoints,
			Explanation:   cg.Explanation,
			Satisfied:     cg.Satisfied,
		})
	}

	// No usable per-criterion breakdown: synthesize one entry per rubric
	// criterion by distributing the reported total proportionally.
	if len(grades) == 0 && len(q.Rubric.Criteria) > 0 {
		for _, criterion := range q.Rubric.Criteria {
			maxPts := q.Rubric.PointsPerCriterion[criterion]
			var pts float64
			if possible > 0 {
				pts = (awarded / possible) * maxPts
			}
			grades = append(grades, model.CriterionGrade{
				Criterion:     criterion,
				PointsAwarded: pts,
				MaxPoints:     maxPts,
				Explanation:   "Grading details not available from the model response",
				Satisfied:     pts >= maxPts*g.cfg.SatisfiedThreshold,
			})
		}
	}

	// Prefer the recomputed percentage when the generator reported zero or
	// its own arithmetic is off by more than the tolerance.
	percentage := rec.Percentage
	if possible > 0 {
		computed := (awarded / possible) * 100
		if percentage == 0 || math.Abs(percentage-computed) > g.cfg.PercentTolerance {
			percentage = computed
		}
	}
	percentage = math.Min(math.Max(percentage, 0), 100)

	state := rec.State
	if state == "" {
		state = model.StateNeedsImprovement
	}

	return model.GradeResult{
		QuestionID:          q.QuestionID,
		TotalPointsAwarded:  awarded,
		TotalPointsPossible: possible,
		Percentage:          percentage,
		Explanation: model.GradeExplanation{
			OverallFeedback: rec.OverallFeedback,
			CriterionGrades: grades,
			Strengths:       rec.Strengths,
			Weaknesses:      rec.Weaknesses,
			Suggestions:     rec.Suggestions,
		},
		GradedAt: time.Now(),
		State:    state,
	}
}

// errorResult builds the Error-state grade returned for every failure path.
// Callers treat it as an ordinary grade; only the state marks it.
func errorResult(q model.Question, feedback string) model.GradeResult {
	return model.GradeResult{
		QuestionID:          q.QuestionID,
		TotalPointsAwarded:  0,
		TotalPointsPossible: q.Rubric.TotalPoints,
		Percentage:          0,
		Explanation: model.GradeExplanation{
			OverallFeedback: feedback,
			CriterionGrades: []model.CriterionGrade{},
			Strengths:       []string{},
			Weaknesses:      []string{"Unable to parse model grading response - format error"},
			Suggestions: []string{
				"Please try resubmitting your response",
				"If the problem persists, contact support",
			},
		},
		GradedAt: time.Now(),
		State:    model.StateError,
	}
}
