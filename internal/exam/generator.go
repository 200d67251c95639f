// Package exam turns normalized generator records into validated domain
// entities: the question generator assembles questions, the grader
// reconciles grades against the rubric.
package exam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examforge/internal/extract"
	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/model"
)

// TextGenerator produces raw text for a prompt. Implemented by llm.Client.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// Generator creates exam questions from generator output.
type Generator struct {
	llm TextGenerator
	cfg model.ServiceConfig
}

// NewGenerator creates a question generator.
func NewGenerator(llm TextGenerator, cfg model.ServiceConfig) *Generator {
	return &Generator{llm: llm, cfg: cfg}
}

// GenerateQuestion produces one validated question for the given domain.
// It returns an error when the backend call fails, when the response cannot
// be parsed, or when the parsed record lacks question text: a missing
// question cannot be defaulted, the caller has to ask again.
func (g *Generator) GenerateQuestion(ctx context.Context, domain, instructions string, targetDifficulty model.Difficulty) (model.Question, error) {
	prompt, err := prompts.BuildQuestionPrompt(domain, instructions, targetDifficulty)
	if err != nil {
		return model.Question{}, fmt.Errorf("build question prompt: %w", err)
	}

	raw, err := g.llm.Generate(ctx, prompt, g.cfg.QuestionTemperature, g.cfg.MaxTokens)
	if err != nil {
		return model.Question{}, fmt.Errorf("generate question: %w", err)
	}

	rec := extract.NormalizeQuestion(extract.Record(raw))
	if rec.Err != "" {
		return model.Question{}, fmt.Errorf("parse generated question: %s (raw: %s)", rec.Err, rec.RawPreview)
	}
	if rec.QuestionText == "" {
		return model.Question{}, fmt.Errorf("generated record has no question text (raw: %s)", extract.Preview(raw))
	}

	q := model.Question{
		QuestionID:   uuid.NewString(),
		QuestionText: rec.QuestionText,
		Rubric: model.Rubric{
			Criteria:           rec.Rubric.Criteria,
			PointsPerCriterion: rec.Rubric.PointsPerCriterion,
			TotalPoints:        rec.Rubric.TotalPoints,
			RequiredElements:   rec.Rubric.RequiredElements,
		},
		DomainInfo: model.DomainInfo{
			BackgroundInfo: rec.BackgroundInfo,
			KeyConcepts:    rec.KeyConcepts,
			Context:        rec.Context,
		},
		CreatedAt:       time.Now(),
		Domain:          domain,
		Difficulty:      model.Difficulty(rec.Difficulty),
		DifficultyScore: rec.DifficultyScore,
	}

	slog.Debug("assembled question",
		"question_id", q.QuestionID,
		"domain", domain,
		"difficulty", q.Difficulty,
		"total_points", q.Rubric.TotalPoints)

	return q, nil
}

// GenerateBatch produces count questions sequentially. The first failure
// aborts the batch; there is no partial recovery.
func (g *Generator) GenerateBatch(ctx context.Context, domain string, count int, instructions string, targetDifficulty model.Difficulty) ([]model.Question, error) {
	questions := make([]model.Question, 0, count)
	for i := 0; i < count; i++ {
		q, err := g.GenerateQuestion(ctx, domain, instructions, targetDifficulty)
		if err != nil {
			return nil, fmt.Errorf("question %d of %d: %w", i+1, count, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}
