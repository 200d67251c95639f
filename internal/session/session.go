// Package session holds in-progress exam sessions in memory.
//
// Two submissions can race for the same session id, so each session carries
// its own mutex, held across the whole find-question, append-response,
// grade, append-grade sequence. Responses and grades therefore stay
// index-aligned by submission order.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examforge/internal/model"
)

var (
	// ErrNotFound means no session exists for the given id.
	ErrNotFound = errors.New("exam session not found")
	// ErrQuestionNotFound means the submitted question id is not part of the session.
	ErrQuestionNotFound = errors.New("question not found in session")
	// ErrCompleted means the session already has a response for every question.
	ErrCompleted = errors.New("exam session already completed")
)

type entry struct {
	mu   sync.Mutex
	sess model.ExamSession
}

// Registry is the in-memory session map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Create starts a new session over the given questions and returns it.
func (r *Registry) Create(studentID string, questions []model.Question) model.ExamSession {
	sess := model.ExamSession{
		SessionID: uuid.NewString(),
		StudentID: studentID,
		Questions: questions,
		Responses: []model.StudentResponse{},
		Grades:    []model.GradeResult{},
		StartedAt: time.Now(),
	}

	r.mu.Lock()
	r.entries[sess.SessionID] = &entry{sess: sess}
	r.mu.Unlock()

	return sess
}

// Get returns a snapshot of the session with the given id.
func (r *Registry) Get(id string) (model.ExamSession, error) {
	e, err := r.entry(id)
	if err != nil {
		return model.ExamSession{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, nil
}

// GradeFunc grades a response against its question. It is called with the
// session lock held so the resulting grade lands next to its response.
type GradeFunc func(q model.Question, resp model.StudentResponse) model.GradeResult

// Submit records a response and its grade atomically with respect to other
// submissions for the same session. The grade is produced by gradeFn; an
// Error-state grade is recorded like any other and never blocks the exam.
// When the last question is answered the completion timestamp is set.
// The returned response carries the submission timestamp as recorded.
func (r *Registry) Submit(sessionID, questionID, responseText string, timeSpent float64, gradeFn GradeFunc) (model.StudentResponse, model.GradeResult, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return model.StudentResponse{}, model.GradeResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Complete() {
		return model.StudentResponse{}, model.GradeResult{}, ErrCompleted
	}
	q := e.sess.QuestionByID(questionID)
	if q == nil {
		return model.StudentResponse{}, model.GradeResult{}, ErrQuestionNotFound
	}

	resp := model.StudentResponse{
		QuestionID:       questionID,
		ResponseText:     responseText,
		TimeSpentSeconds: timeSpent,
		SubmittedAt:      time.Now(),
	}
	grade := gradeFn(*q, resp)

	e.sess.Responses = append(e.sess.Responses, resp)
	e.sess.Grades = append(e.sess.Grades, grade)

	if e.sess.Complete() && e.sess.CompletedAt == nil {
		now := time.Now()
		e.sess.CompletedAt = &now
	}

	return resp, grade, nil
}

func (r *Registry) entry(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}
