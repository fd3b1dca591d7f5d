package model

import "time"

// ScoringMethodCumulative is the only scoring method reports are produced with.
const ScoringMethodCumulative = "cumulative_against_full_exam"

// OverallPerformance is the headline figure of a report.
type OverallPerformance struct {
	OverallScore   float64 `json:"overall_score"`
	PointsEarned   float64 `json:"points_earned"`
	PointsPossible float64 `json:"points_possible"`
}

// SkillResult is the cumulative result for one skill.
type SkillResult struct {
	Percentage     float64 `json:"percentage"`
	PointsEarned   float64 `json:"points_earned"`
	PointsPossible float64 `json:"points_possible"`
}

// ExamProgress describes how far a candidate got through the exam.
type ExamProgress struct {
	QuestionsAttempted      int     `json:"questions_attempted"`
	TotalQuestionsAvailable int     `json:"total_questions_available"`
	CompletionPercentage    float64 `json:"completion_percentage"`
	HighestLevelAttempted   Level   `json:"highest_level_attempted"`
	LevelsAttempted         []Level `json:"levels_attempted"`
}

// LevelDetail is the per-level section of a report.
type LevelDetail struct {
	Level              Level         `json:"level"`
	Label              string        `json:"label,omitempty"`
	QuestionsCompleted int           `json:"questions_completed"`
	EarnedPoints       Skills        `json:"earned_points"`
	MaxPoints          Skills        `json:"max_points"`
	Percentage         float64       `json:"percentage"`
	Passed             bool          `json:"passed"`
	ThresholdRequired  float64       `json:"threshold_required"`
	MockAnswers        int           `json:"mock_answers"`
	Questions          []ScoreRecord `json:"questions,omitempty"`
}

// Report is the final cumulative result of an exam session.
type Report struct {
	SessionID            string                `json:"session_id"`
	UserID               string                `json:"user_id"`
	ExamDate             time.Time             `json:"exam_date"`
	CompletionDate       *time.Time            `json:"completion_date,omitempty"`
	ScoringMethod        string                `json:"scoring_method"`
	FinalLevel           Level                 `json:"final_level"`
	OverallPerformance   OverallPerformance    `json:"overall_performance"`
	SkillBreakdown       map[Skill]SkillResult `json:"skill_breakdown"`
	ExamProgress         ExamProgress          `json:"exam_progress"`
	ProgressSummary      string                `json:"progress_summary,omitempty"`
	LevelDetails         []LevelDetail         `json:"level_details"`
	CertificateEligible  bool                  `json:"certificate_eligible"`
	CertificateThreshold float64               `json:"certificate_threshold"`
	ContainsMockData     bool                  `json:"contains_mock_data"`
}

// ArchivedReport is a report as stored in the archive.
type ArchivedReport struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	FinalLevel   Level     `json:"final_level"`
	OverallScore float64   `json:"overall_score"`
	ArchivedAt   time.Time `json:"archived_at"`
	Report       Report    `json:"report"`
}

// ReportExport is the top-level document written by the export command.
type ReportExport struct {
	ExportedAt time.Time        `json:"exported_at"`
	Count      int              `json:"count"`
	Reports    []ArchivedReport `json:"reports"`
}
