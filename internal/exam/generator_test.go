package exam

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pavelanni/examforge/internal/model"
)

// stubGenerator returns canned responses in order, then repeats the last one.
type stubGenerator struct {
	responses []string
	err       error
	calls     int
}

func (s *stubGenerator) Generate(_ context.Context, _ string, _ float64, _ int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

const questionResponse = `Sure, here is the question: {
	'background_info': 'Goroutines are lightweight threads.',
	'key_concepts': ['goroutines', 'channels'],
	'context': 'Concurrency in Go',
	'question_text': 'Explain how goroutines differ from OS threads.',
	'difficulty': 'medium',
	'difficulty_score': '7/10',
	'rubric': {
		'criteria': ['scheduling', 'memory model'],
		'points_per_criterion': {'scheduling': 10.0, 'memory model': 15.0},
		'total_points': 25.0,
		'required_elements': ['M:N scheduling']
	}
}`

func TestGenerateQuestion(t *testing.T) {
	stub := &stubGenerator{responses: []string{questionResponse}}
	gen := NewGenerator(stub, model.DefaultServiceConfig())

	q, err := gen.GenerateQuestion(context.Background(), "Computer Science", "", "")
	if err != nil {
		t.Fatalf("GenerateQuestion: %v", err)
	}

	if q.QuestionID == "" {
		t.Error("question should have a generated id")
	}
	if q.QuestionText != "Explain how goroutines differ from OS threads." {
		t.Errorf("QuestionText = %q", q.QuestionText)
	}
	if q.Domain != "Computer Science" {
		t.Errorf("Domain = %q", q.Domain)
	}
	if q.Difficulty != model.DifficultyMedium {
		t.Errorf("Difficulty = %q, want Medium", q.Difficulty)
	}
	if q.DifficultyScore == nil || *q.DifficultyScore != 7.0 {
		t.Errorf("DifficultyScore = %v, want 7", q.DifficultyScore)
	}
	if q.Rubric.TotalPoints != 25 {
		t.Errorf("TotalPoints = %v, want 25", q.Rubric.TotalPoints)
	}
	if q.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestGenerateQuestionFailures(t *testing.T) {
	tests := []struct {
		name    string
		stub    *stubGenerator
		wantMsg string
	}{
		{
			"unparseable response",
			&stubGenerator{responses: []string{"I cannot help with that."}},
			"parse generated question",
		},
		{
			"missing question text",
			&stubGenerator{responses: []string{`{"background_info": "x", "rubric": {}}`}},
			"no question text",
		},
		{
			"transport error",
			&stubGenerator{err: errors.New("connection refused")},
			"generate question",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(tt.stub, model.DefaultServiceConfig())
			_, err := gen.GenerateQuestion(context.Background(), "History", "", "")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", err, tt.wantMsg)
			}
		})
	}
}

func TestGenerateBatch(t *testing.T) {
	t.Run("sequential success", func(t *testing.T) {
		stub := &stubGenerator{responses: []string{questionResponse}}
		gen := NewGenerator(stub, model.DefaultServiceConfig())

		questions, err := gen.GenerateBatch(context.Background(), "History", 3, "", model.DifficultyEasy)
		if err != nil {
			t.Fatalf("GenerateBatch: %v", err)
		}
		if len(questions) != 3 {
			t.Fatalf("got %d questions, want 3", len(questions))
		}
		if stub.calls != 3 {
			t.Errorf("generator called %d times, want 3", stub.calls)
		}
		if questions[0].QuestionID == questions[1].QuestionID {
			t.Error("questions should have distinct ids")
		}
	})

	t.Run("failure aborts batch", func(t *testing.T) {
		stub := &stubGenerator{responses: []string{questionResponse, "garbage"}}
		gen := NewGenerator(stub, model.DefaultServiceConfig())

		_, err := gen.GenerateBatch(context.Background(), "History", 3, "", "")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "question 2 of 3") {
			t.Errorf("error = %q, want batch position", err)
		}
		if stub.calls != 2 {
			t.Errorf("generator called %d times, want 2", stub.calls)
		}
	})
}
