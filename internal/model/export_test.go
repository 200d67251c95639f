package model

import (
	"testing"
	"time"
)

func TestBuildExport(t *testing.T) {
	now := time.Now().UTC()
	done := now.Add(10 * time.Minute)
	sess := ExamSession{
		SessionID:   "sess-1",
		StudentID:   "student-1",
		StartedAt:   now,
		CompletedAt: &done,
		Questions: []Question{
			{QuestionID: "q1", QuestionText: "Q1", Rubric: Rubric{TotalPoints: 30}},
			{QuestionID: "q2", QuestionText: "Q2", Rubric: Rubric{TotalPoints: 20}},
			{QuestionID: "q3", QuestionText: "Q3", Rubric: Rubric{TotalPoints: 50}},
		},
		Responses: []StudentResponse{
			{QuestionID: "q1", ResponseText: "a1", SubmittedAt: now},
			{QuestionID: "q2", ResponseText: "a2", SubmittedAt: now},
		},
		Grades: []GradeResult{
			{QuestionID: "q1", TotalPointsAwarded: 15, TotalPointsPossible: 30, Percentage: 50, State: StateNeedsImprovement},
			{QuestionID: "q2", TotalPointsAwarded: 0, TotalPointsPossible: 20, State: StateError},
		},
	}

	export := BuildExport([]ExamSession{sess}, now)
	if len(export.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(export.Sessions))
	}
	sr := export.Sessions[0]
	if len(sr.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(sr.Questions))
	}

	// Error-state grades are excluded from the totals.
	if sr.PointsAwarded != 15 {
		t.Errorf("expected 15 points awarded, got %g", sr.PointsAwarded)
	}
	if sr.PointsPossible != 30 {
		t.Errorf("expected 30 points possible, got %g", sr.PointsPossible)
	}
	if sr.Percentage != 50 {
		t.Errorf("expected 50%%, got %g", sr.Percentage)
	}

	if sr.Questions[0].Response == nil || sr.Questions[0].Grade == nil {
		t.Error("expected q1 response and grade present")
	}
	if sr.Questions[2].Response != nil || sr.Questions[2].Grade != nil {
		t.Error("expected q3 unanswered")
	}
}

func TestBuildExportNoGrades(t *testing.T) {
	sess := ExamSession{
		SessionID: "sess-1",
		Questions: []Question{{QuestionID: "q1", Rubric: Rubric{TotalPoints: 10}}},
	}
	export := BuildExport([]ExamSession{sess}, time.Now())
	if export.Sessions[0].Percentage != 0 {
		t.Errorf("expected 0%% with no grades, got %g", export.Sessions[0].Percentage)
	}
}
