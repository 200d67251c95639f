package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionResult `json:"sessions"`
}

// SessionResult holds one exam session's data for export.
type SessionResult struct {
	SessionID      string           `json:"session_id"`
	StudentID      string           `json:"student_id"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Questions      []QuestionResult `json:"questions"`
	PointsAwarded  float64          `json:"points_awarded"`
	PointsPossible float64          `json:"points_possible"`
	Percentage     float64          `json:"percentage"`
}

// QuestionResult pairs a question with its response and grade for export.
// Response and Grade are nil for questions never answered.
type QuestionResult struct {
	QuestionID string           `json:"question_id"`
	Text       string           `json:"text"`
	Domain     string           `json:"domain"`
	Difficulty Difficulty       `json:"difficulty"`
	MaxPoints  float64          `json:"max_points"`
	Response   *StudentResponse `json:"response,omitempty"`
	Grade      *GradeResult     `json:"grade,omitempty"`
}

// BuildExport assembles the export structure from archived sessions.
// Session totals sum every non-error grade; the percentage is recomputed
// from the sums rather than averaged.
func BuildExport(sessions []ExamSession, at time.Time) ExamExport {
	export := ExamExport{ExportedAt: at, Sessions: make([]SessionResult, 0, len(sessions))}
	for i := range sessions {
		export.Sessions = append(export.Sessions, SessionResultFor(&sessions[i]))
	}
	return export
}

// SessionResultFor summarizes one session: per-question results plus totals.
func SessionResultFor(sess *ExamSession) SessionResult {
	result := SessionResult{
		SessionID:   sess.SessionID,
		StudentID:   sess.StudentID,
		StartedAt:   sess.StartedAt,
		CompletedAt: sess.CompletedAt,
	}

	responses := make(map[string]*StudentResponse, len(sess.Responses))
	for i := range sess.Responses {
		responses[sess.Responses[i].QuestionID] = &sess.Responses[i]
	}
	grades := make(map[string]*GradeResult, len(sess.Grades))
	for i := range sess.Grades {
		grades[sess.Grades[i].QuestionID] = &sess.Grades[i]
	}

	for i := range sess.Questions {
		q := &sess.Questions[i]
		qr := QuestionResult{
			QuestionID: q.QuestionID,
			Text:       q.QuestionText,
			Domain:     q.Domain,
			Difficulty: q.Difficulty,
			MaxPoints:  q.Rubric.TotalPoints,
			Response:   responses[q.QuestionID],
			Grade:      grades[q.QuestionID],
		}
		if g := qr.Grade; g != nil && g.State != StateError {
			result.PointsAwarded += g.TotalPointsAwarded
			result.PointsPossible += g.TotalPointsPossible
		}
		result.Questions = append(result.Questions, qr)
	}

	if result.PointsPossible > 0 {
		result.Percentage = result.PointsAwarded / result.PointsPossible * 100
	}
	return result
}
