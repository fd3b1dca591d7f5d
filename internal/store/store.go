package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/placement/internal/corpus"
	"github.com/pavelanni/placement/internal/model"

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
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
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
	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		type TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		source TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_questions_level_type ON questions(level, type);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_reports (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		final_level TEXT NOT NULL DEFAULT '',
		overall_score REAL NOT NULL DEFAULT 0,
		archived_at DATETIME NOT NULL,
		report TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertQuestion stores a question. It reports false if a question with the
// same id already exists.
func (s *Store) InsertQuestion(q model.Question, source string) (bool, error) {
	md, err := json.Marshal(q.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO questions (id, level, type, prompt, metadata, source)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.Level, q.Type, q.Prompt, string(md), source,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListQuestions returns all questions ordered by id.
func (s *Store) ListQuestions() ([]model.Question, error) {
	return s.queryQuestions(`SELECT id, level, type, prompt, metadata FROM questions ORDER BY id`)
}

// ListQuestionsByLevel returns the questions of one level ordered by id.
func (s *Store) ListQuestionsByLevel(level model.Level) ([]model.Question, error) {
	return s.queryQuestions(`SELECT id, level, type, prompt, metadata FROM questions WHERE level = ? ORDER BY id`, level)
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var md string
		if err := rows.Scan(&q.ID, &q.Level, &q.Type, &q.Prompt, &md); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(md), &q.Metadata); err != nil {
			return nil, fmt.Errorf("question %s metadata: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by id.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	qs, err := s.queryQuestions(`SELECT id, level, type, prompt, metadata FROM questions WHERE id = ?`, id)
	if err != nil {
		return model.Question{}, err
	}
	if len(qs) == 0 {
		return model.Question{}, sql.ErrNoRows
	}
	return qs[0], nil
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// GetImportedFileHash returns the hash recorded for a question file, or an
// empty string if the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported question file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?, imported_at = ?`,
		path, hash, time.Now(), hash, time.Now(),
	)
	return err
}

// ImportStatus describes what happened to a question file.
type ImportStatus string

const (
	ImportNew       ImportStatus = "imported"
	ImportUnchanged ImportStatus = "unchanged"
	// ImportChanged means the file differs from the imported version. It is
	// not re-imported so running sessions keep consistent question ids.
	ImportChanged ImportStatus = "changed"
)

// ImportResult is the outcome of ImportQuestions.
type ImportResult struct {
	Status   ImportStatus `json:"status"`
	Parsed   int          `json:"parsed"`
	Inserted int          `json:"inserted"`
}

// ImportQuestions imports a question file unless a file with the same name
// was imported before.
func (s *Store) ImportQuestions(name string, data []byte) (ImportResult, error) {
	hash := sha256sum(data)
	storedHash, err := s.GetImportedFileHash(name)
	if err != nil {
		return ImportResult{}, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if storedHash == hash {
		return ImportResult{Status: ImportUnchanged}, nil
	}
	if storedHash != "" {
		return ImportResult{Status: ImportChanged}, nil
	}

	questions, err := corpus.ParseQuestions(data)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse %s: %w", name, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback()

	res := ImportResult{Status: ImportNew, Parsed: len(questions)}
	for _, q := range questions {
		if q.Level == "" {
			continue
		}
		md, err := json.Marshal(q.Metadata)
		if err != nil {
			return ImportResult{}, fmt.Errorf("marshal metadata of %s: %w", q.ID, err)
		}
		r, err := tx.Exec(
			`INSERT OR IGNORE INTO questions (id, level, type, prompt, metadata, source)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			q.ID, q.Level, q.Type, q.Prompt, string(md), name,
		)
		if err != nil {
			return ImportResult{}, fmt.Errorf("insert question %s: %w", q.ID, err)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Inserted++
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)`,
		name, hash, time.Now(),
	); err != nil {
		return ImportResult{}, fmt.Errorf("record import for %s: %w", name, err)
	}
	return res, tx.Commit()
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
