// Package store archives exam sessions in SQLite so results survive the
// process and can be exported. The in-memory session registry remains the
// serving source of truth; the store is written behind it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/examforge/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		domain TEXT NOT NULL,
		question_text TEXT NOT NULL,
		difficulty TEXT NOT NULL DEFAULT '',
		difficulty_score REAL,
		rubric TEXT NOT NULL,
		domain_info TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		response_text TEXT NOT NULL,
		time_spent_seconds REAL NOT NULL DEFAULT 0,
		submitted_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS grades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		points_awarded REAL NOT NULL DEFAULT 0,
		points_possible REAL NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL,
		graded_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSession archives a newly created session with its questions.
func (s *Store) SaveSession(sess model.ExamSession) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (id, student_id, started_at, completed_at) VALUES (?, ?, ?, ?)`,
		sess.SessionID, sess.StudentID, sess.StartedAt, sess.CompletedAt,
	)
	if err != nil {
		return err
	}

	for i, q := range sess.Questions {
		rubric, err := json.Marshal(q.Rubric)
		if err != nil {
			return fmt.Errorf("marshal rubric: %w", err)
		}
		domainInfo, err := json.Marshal(q.DomainInfo)
		if err != nil {
			return fmt.Errorf("marshal domain info: %w", err)
		}

		var score sql.NullFloat64
		if q.DifficultyScore != nil {
			score = sql.NullFloat64{Float64: *q.DifficultyScore, Valid: true}
		}

		_, err = tx.Exec(
			`INSERT INTO questions (id, session_id, position, domain, question_text, difficulty, difficulty_score, rubric, domain_info, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.QuestionID, sess.SessionID, i, q.Domain, q.QuestionText, string(q.Difficulty), score, string(rubric), string(domainInfo), q.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveResponse archives a submitted response.
func (s *Store) SaveResponse(sessionID string, resp model.StudentResponse) error {
	_, err := s.db.Exec(
		`INSERT INTO responses (session_id, question_id, response_text, time_spent_seconds, submitted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, resp.QuestionID, resp.ResponseText, resp.TimeSpentSeconds, resp.SubmittedAt,
	)
	return err
}

// SaveGrade archives a grade result.
func (s *Store) SaveGrade(sessionID string, g model.GradeResult) error {
	explanation, err := json.Marshal(g.Explanation)
	if err != nil {
		return fmt.Errorf("marshal explanation: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO grades (session_id, question_id, points_awarded, points_possible, percentage, state, explanation, graded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, g.QuestionID, g.TotalPointsAwarded, g.TotalPointsPossible, g.Percentage, g.State, string(explanation), g.GradedAt,
	)
	return err
}

// CompleteSession records the completion timestamp.
func (s *Store) CompleteSession(sessionID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE sessions SET completed_at = ? WHERE id = ?`, at, sessionID)
	return err
}

// GetSession reassembles an archived session.
func (s *Store) GetSession(id string) (model.ExamSession, error) {
	var sess model.ExamSession
	err := s.db.QueryRow(
		`SELECT id, student_id, started_at, completed_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.SessionID, &sess.StudentID, &sess.StartedAt, &sess.CompletedAt)
	if err != nil {
		return sess, err
	}
	if err := s.loadSessionDetails(&sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// ListSessions returns all archived sessions, newest first.
func (s *Store) ListSessions() ([]model.ExamSession, error) {
	rows, err := s.db.Query(`SELECT id, student_id, started_at, completed_at FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		var sess model.ExamSession
		if err := rows.Scan(&sess.SessionID, &sess.StudentID, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		if err := s.loadSessionDetails(&sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// SessionCount returns the number of archived sessions.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

func (s *Store) loadSessionDetails(sess *model.ExamSession) error {
	questions, err := s.questionsForSession(sess.SessionID)
	if err != nil {
		return fmt.Errorf("load questions for %s: %w", sess.SessionID, err)
	}
	sess.Questions = questions

	responses, err := s.responsesForSession(sess.SessionID)
	if err != nil {
		return fmt.Errorf("load responses for %s: %w", sess.SessionID, err)
	}
	sess.Responses = responses

	grades, err := s.gradesForSession(sess.SessionID)
	if err != nil {
		return fmt.Errorf("load grades for %s: %w", sess.SessionID, err)
	}
	sess.Grades = grades
	return nil
}

func (s *Store) questionsForSession(sessionID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, domain, question_text, difficulty, difficulty_score, rubric, domain_info, created_at
		 FROM questions WHERE session_id = ? ORDER BY position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var difficulty string
		var score sql.NullFloat64
		var rubric, domainInfo string
		if err := rows.Scan(&q.QuestionID, &q.Domain, &q.QuestionText, &difficulty, &score, &rubric, &domainInfo, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Difficulty = model.Difficulty(difficulty)
		if score.Valid {
			q.DifficultyScore = &score.Float64
		}
		if err := json.Unmarshal([]byte(rubric), &q.Rubric); err != nil {
			return nil, fmt.Errorf("unmarshal rubric: %w", err)
		}
		if err := json.Unmarshal([]byte(domainInfo), &q.DomainInfo); err != nil {
			return nil, fmt.Errorf("unmarshal domain info: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) responsesForSession(sessionID string) ([]model.StudentResponse, error) {
	rows, err := s.db.Query(
		`SELECT question_id, response_text, time_spent_seconds, submitted_at
		 FROM responses WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []model.StudentResponse
	for rows.Next() {
		var r model.StudentResponse
		if err := rows.Scan(&r.QuestionID, &r.ResponseText, &r.TimeSpentSeconds, &r.SubmittedAt); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

func (s *Store) gradesForSession(sessionID string) ([]model.GradeResult, error) {
	rows, err := s.db.Query(
		`SELECT question_id, points_awarded, points_possible, percentage, state, explanation, graded_at
		 FROM grades WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []model.GradeResult
	for rows.Next() {
		var g model.GradeResult
		var explanation string
		if err := rows.Scan(&g.QuestionID, &g.TotalPointsAwarded, &g.TotalPointsPossible, &g.Percentage, &g.State, &explanation, &g.GradedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(explanation), &g.Explanation); err != nil {
			return nil, fmt.Errorf("unmarshal explanation: %w", err)
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}
