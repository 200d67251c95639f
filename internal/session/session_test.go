package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pavelanni/examforge/internal/model"
)

func testQuestions(n int) []model.Question {
	var qs []model.Question
	for i := 0; i < n; i++ {
		qs = append(qs, model.Question{
			QuestionID: fmt.Sprintf("q-%d", i),
			Rubric:     model.Rubric{TotalPoints: 10},
		})
	}
	return qs
}

func passingGrade(q model.Question, _ model.StudentResponse) model.GradeResult {
	return model.GradeResult{
		QuestionID:          q.QuestionID,
		TotalPointsAwarded:  10,
		TotalPointsPossible: q.Rubric.TotalPoints,
		Percentage:          100,
		State:               model.StatePass,
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry()
	created := r.Create("student-1", testQuestions(2))

	if created.SessionID == "" {
		t.Error("session should have an id")
	}
	if created.StartedAt.IsZero() {
		t.Error("session should have a start timestamp")
	}

	got, err := r.Get(created.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StudentID != "student-1" {
		t.Errorf("StudentID = %q", got.StudentID)
	}
	if len(got.Questions) != 2 {
		t.Errorf("got %d questions, want 2", len(got.Questions))
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestRegistrySubmit(t *testing.T) {
	r := NewRegistry()
	sess := r.Create("student-1", testQuestions(2))

	resp, grade, err := r.Submit(sess.SessionID, "q-0", "my answer", 60, passingGrade)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if grade.State != model.StatePass {
		t.Errorf("State = %q, want P", grade.State)
	}
	if resp.SubmittedAt.IsZero() {
		t.Error("returned response should carry the submission timestamp")
	}

	got, _ := r.Get(sess.SessionID)
	if len(got.Responses) != 1 || len(got.Grades) != 1 {
		t.Fatalf("responses/grades = %d/%d, want 1/1", len(got.Responses), len(got.Grades))
	}
	// The returned response is the one the session recorded.
	if !got.Responses[0].SubmittedAt.Equal(resp.SubmittedAt) {
		t.Errorf("returned SubmittedAt %v differs from recorded %v",
			resp.SubmittedAt, got.Responses[0].SubmittedAt)
	}
	if got.CompletedAt != nil {
		t.Error("session should not be complete after one of two answers")
	}

	if _, _, err := r.Submit(sess.SessionID, "q-404", "x", 1, passingGrade); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("unknown question = %v, want ErrQuestionNotFound", err)
	}

	if _, _, err := r.Submit(sess.SessionID, "q-1", "second answer", 30, passingGrade); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, _ = r.Get(sess.SessionID)
	if got.CompletedAt == nil {
		t.Error("session should be complete after all questions answered")
	}

	if _, _, err := r.Submit(sess.SessionID, "q-0", "late", 5, passingGrade); !errors.Is(err, ErrCompleted) {
		t.Errorf("submit after completion = %v, want ErrCompleted", err)
	}
}

func TestRegistryConcurrentSubmits(t *testing.T) {
	const workers = 16

	r := NewRegistry()
	sess := r.Create("student-1", testQuestions(workers))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := r.Submit(sess.SessionID, fmt.Sprintf("q-%d", i), "answer", 1, passingGrade)
			if err != nil {
				t.Errorf("Submit q-%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := r.Get(sess.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Responses) != workers || len(got.Grades) != workers {
		t.Fatalf("responses/grades = %d/%d, want %d each", len(got.Responses), len(got.Grades), workers)
	}
	// Grades stay index-aligned with responses by submission order.
	for i := range got.Responses {
		if got.Responses[i].QuestionID != got.Grades[i].QuestionID {
			t.Errorf("index %d: response for %s but grade for %s",
				i, got.Responses[i].QuestionID, got.Grades[i].QuestionID)
		}
	}
	if got.CompletedAt == nil {
		t.Error("session should be complete")
	}
}
