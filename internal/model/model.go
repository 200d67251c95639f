package model

import "time"

// Difficulty represents a question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ValidDifficulty reports whether s is one of the three difficulty labels.
func ValidDifficulty(s string) bool {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Grade states. StatePass is set by the generator when the response is highly
// satisfactory; StateError marks a grade produced from an unparseable response.
const (
	StatePass             = "P"
	StateNeedsImprovement = "Needs Improvement"
	StateError            = "Error"
)

// Rubric is the authoritative grading scale for a question, fixed at
// question-creation time. TotalPoints is never overwritten by generator
// output after assembly.
type Rubric struct {
	Criteria           []string           `json:"criteria"`
	PointsPerCriterion map[string]float64 `json:"points_per_criterion"`
	TotalPoints        float64            `json:"total_points"`
	RequiredElements   []string           `json:"required_elements"`
}

// DomainInfo is background material shown to the examinee.
type DomainInfo struct {
	BackgroundInfo string   `json:"background_info"`
	KeyConcepts    []string `json:"key_concepts"`
	Context        string   `json:"context"`
}

// Question is an exam question with its rubric and domain material.
// Immutable once assembled.
type Question struct {
	QuestionID      string     `json:"question_id"`
	QuestionText    string     `json:"question_text"`
	Rubric          Rubric     `json:"rubric"`
	DomainInfo      DomainInfo `json:"domain_info"`
	CreatedAt       time.Time  `json:"created_at"`
	Domain          string     `json:"domain"`
	Difficulty      Difficulty `json:"difficulty,omitempty"`
	DifficultyScore *float64   `json:"difficulty_score,omitempty"`
}

// StudentResponse is a student's submitted answer to a question.
type StudentResponse struct {
	QuestionID       string    `json:"question_id"`
	ResponseText     string    `json:"response_text"`
	TimeSpentSeconds float64   `json:"time_spent_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// CriterionGrade is the grade for a single rubric criterion. MaxPoints is
// copied from the rubric at grading time.
type CriterionGrade struct {
	Criterion     string  `json:"criterion"`
	PointsAwarded float64 `json:"points_awarded"`
	MaxPoints     float64 `json:"max_points"`
	Explanation   string  `json:"explanation"`
	Satisfied     bool    `json:"satisfied"`
}

// GradeExplanation is the detailed breakdown of a grade.
type GradeExplanation struct {
	OverallFeedback string           `json:"overall_feedback"`
	CriterionGrades []CriterionGrade `json:"criterion_grades"`
	Strengths       []string         `json:"strengths"`
	Weaknesses      []string         `json:"weaknesses"`
	Suggestions     []string         `json:"suggestions"`
}

// GradeResult is a reconciled grade for one student response.
// TotalPointsPossible always equals the question rubric's TotalPoints.
type GradeResult struct {
	QuestionID          string           `json:"question_id"`
	TotalPointsAwarded  float64          `json:"total_points_awarded"`
	TotalPointsPossible float64          `json:"total_points_possible"`
	Percentage          float64          `json:"percentage"`
	Explanation         GradeExplanation `json:"explanation"`
	GradedAt            time.Time        `json:"graded_at"`
	State               string           `json:"state"`
}

// ExamSession aggregates the questions, responses, and grades of one exam.
// Questions are fixed at creation; responses and grades are append-only and
// aligned by submission order.
type ExamSession struct {
	SessionID   string            `json:"session_id"`
	StudentID   string            `json:"student_id"`
	Questions   []Question        `json:"questions"`
	Responses   []StudentResponse `json:"responses"`
	Grades      []GradeResult     `json:"grades"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Complete reports whether every question has a response.
func (s *ExamSession) Complete() bool {
	return len(s.Responses) >= len(s.Questions)
}

// QuestionByID returns the session question with the given id, or nil.
func (s *ExamSession) QuestionByID(id string) *Question {
	for i := range s.Questions {
		if s.Questions[i].QuestionID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// ServiceConfig holds runtime parameters passed explicitly into the
// generator, grader, and handlers. There is no process-wide settings object.
type ServiceConfig struct {
	DefaultDomain       string  // exam domain used when a request omits one
	QuestionTemperature float64 // sampling temperature for question generation
	GradingTemperature  float64 // sampling temperature for grading
	MaxTokens           int     // response token budget for both call kinds
	SatisfiedThreshold  float64 // fraction of criterion max that marks it satisfied
	PercentTolerance    float64 // allowed drift between reported and recomputed percentage
	DebugResponses      bool    // log raw generator output at debug level
}

// DefaultServiceConfig returns the stock configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultDomain:       "Computer Science",
		QuestionTemperature: 0.8,
		GradingTemperature:  0.3,
		MaxTokens:           3000,
		SatisfiedThreshold:  0.7,
		PercentTolerance:    1.0,
	}
}
