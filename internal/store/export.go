package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/placement/internal/model"
)

// ArchiveReport stores the final report of a completed exam. Archiving the
// same session twice replaces the earlier entry.
func (s *Store) ArchiveReport(r model.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	archivedAt := time.Now()
	if r.CompletionDate != nil {
		archivedAt = *r.CompletionDate
	}
	_, err = s.db.Exec(
		`INSERT INTO exam_reports (session_id, user_id, final_level, overall_score, archived_at, report)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   final_level = excluded.final_level,
		   overall_score = excluded.overall_score,
		   archived_at = excluded.archived_at,
		   report = excluded.report`,
		r.SessionID, r.UserID, r.FinalLevel, r.OverallPerformance.OverallScore, archivedAt, string(data),
	)
	return err
}

// GetReport returns the archived report of a session, or nil if none exists.
func (s *Store) GetReport(sessionID string) (*model.ArchivedReport, error) {
	reports, err := s.queryReports(
		`SELECT session_id, user_id, final_level, overall_score, archived_at, report
		 FROM exam_reports WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// ExportReports returns every archived report, oldest first.
func (s *Store) ExportReports() ([]model.ArchivedReport, error) {
	return s.queryReports(
		`SELECT session_id, user_id, final_level, overall_score, archived_at, report
		 FROM exam_reports ORDER BY archived_at, session_id`)
}

func (s *Store) queryReports(query string, args ...any) ([]model.ArchivedReport, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []model.ArchivedReport
	for rows.Next() {
		var ar model.ArchivedReport
		var data string
		if err := rows.Scan(&ar.SessionID, &ar.UserID, &ar.FinalLevel, &ar.OverallScore, &ar.ArchivedAt, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &ar.Report); err != nil {
			return nil, fmt.Errorf("report %s: %w", ar.SessionID, err)
		}
		reports = append(reports, ar)
	}
	return reports, rows.Err()
}
