package model

import "time"

// Level is a CEFR-style proficiency band such as "A1" or "C2".
type Level string

// QuestionType identifies how a question is presented and scored.
type QuestionType string

const (
	TypeRepeatSentence   QuestionType = "repeat_sentence"
	TypeOpenResponse     QuestionType = "open_response"
	TypeMinimalPair      QuestionType = "minimal_pair"
	TypeDictation        QuestionType = "dictation"
	TypeListenMCQ        QuestionType = "listen_mcq"
	TypeBestResponseMCQ  QuestionType = "best_response_mcq"
	TypeImageDescription QuestionType = "image_description"
	TypeListenAnswer     QuestionType = "listen_answer"
	TypeSequence         QuestionType = "sequence"
)

// IsMCQ reports whether the type is a multiple-choice question.
func (t QuestionType) IsMCQ() bool {
	return t == TypeListenMCQ || t == TypeBestResponseMCQ
}

// IsUnscripted reports whether audio answers for the type go to the unscripted assessment.
func (t QuestionType) IsUnscripted() bool {
	switch t {
	case TypeOpenResponse, TypeImageDescription, TypeListenAnswer:
		return true
	}
	return false
}

// HasDurationPenalty reports whether short answers lose fluency credit.
// listen_answer is unscripted but deliberately excluded.
func (t QuestionType) HasDurationPenalty() bool {
	return t == TypeOpenResponse || t == TypeImageDescription
}

// ResponseType tags how a candidate answered.
type ResponseType string

const (
	ResponseAudio ResponseType = "audio"
	ResponseText  ResponseType = "text"
)

// SessionStatus represents the status of an exam session.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "not_started"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// Timing holds the presentation timing of a question, in seconds.
type Timing struct {
	ThinkTimeSec      int `json:"think_time_sec" yaml:"think_time_sec"`
	ResponseTimeSec   int `json:"response_time_sec" yaml:"response_time_sec"`
	TotalEstimatedSec int `json:"total_estimated_sec" yaml:"total_estimated_sec"`
}

// QuestionContext describes what an unscripted answer should be about.
type QuestionContext struct {
	Question           string `json:"question,omitempty"`
	ContextDescription string `json:"context_description,omitempty"`
}

// Metadata is the type-specific payload of a corpus question.
type Metadata struct {
	ExpectedText     string           `json:"expectedText,omitempty"`
	Options          []string         `json:"options,omitempty"`
	CorrectAnswer    string           `json:"correctAnswer,omitempty"`
	AudioRef         string           `json:"audioRef,omitempty"`
	ImageRef         string           `json:"imageRef,omitempty"`
	ImageDescription string           `json:"imageDescription,omitempty"`
	Context          *QuestionContext `json:"context,omitempty"`
	Accent           string           `json:"accent,omitempty"`
}

// Question is an immutable corpus entry.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Level    Level        `json:"level"`
	Prompt   string       `json:"prompt"`
	Metadata Metadata     `json:"metadata"`
}

// FormattedQuestion is the presentation projection of a Question for one attempt.
type FormattedQuestion struct {
	QID              string       `json:"q_id"`
	Type             QuestionType `json:"q_type"`
	Level            Level        `json:"level"`
	Prompt           string       `json:"prompt"`
	Metadata         Metadata     `json:"metadata"`
	Timing           Timing       `json:"timing"`
	Options          []string     `json:"options,omitempty"`
	CorrectAnswer    string       `json:"correct_answer,omitempty"`
	AudioRef         string       `json:"audio_ref,omitempty"`
	ExpectedText     string       `json:"expected_text,omitempty"`
	ImageRef         string       `json:"image_ref,omitempty"`
	ImageDescription string       `json:"image_description,omitempty"`

	// Position metadata, attached when served.
	QuestionNumber int   `json:"question_number,omitempty"`
	TotalInLevel   int   `json:"total_questions_in_level,omitempty"`
	CurrentLevel   Level `json:"current_level,omitempty"`
}

// Submission is one candidate response as received from the caller.
type Submission struct {
	QuestionID   string       `json:"q_id"`
	ResponseType ResponseType `json:"response_type"`
	ResponseData string       `json:"response_data,omitempty"`
	AudioPath    string       `json:"audio_file_path,omitempty"`
	Level        Level        `json:"level,omitempty"`
	ReceivedAt   time.Time    `json:"timestamp"`
}

// ScoreRecord is the ledger entry for one answered question.
type ScoreRecord struct {
	QuestionID    string            `json:"q_id"`
	Scores        Skills            `json:"scores"`
	WeightedScore float64           `json:"weighted_score"`
	Evaluation    EvaluationResult  `json:"evaluation_details"`
	Response      Submission        `json:"response_data"`
	Question      FormattedQuestion `json:"question_info"`
}

// LevelScore is the scoring ledger of one level within a session.
type LevelScore struct {
	Level      Level         `json:"level"`
	Questions  []ScoreRecord `json:"questions"`
	Earned     Skills        `json:"earned_points"`
	Max        Skills        `json:"max_points"`
	Percentage float64       `json:"percentage"`
	Passed     bool          `json:"passed"`
	Evaluated  bool          `json:"evaluated"`
}

// ExamSession is the state of one candidate's attempt.
type ExamSession struct {
	ID                   string                `json:"session_id"`
	UserID               string                `json:"user_id"`
	CurrentLevel         Level                 `json:"current_level"`
	CurrentQuestionIndex int                   `json:"current_question_index"`
	LevelQuestions       []FormattedQuestion   `json:"level_questions"`
	CompletedLevels      []Level               `json:"completed_levels"`
	LevelScores          map[Level]*LevelScore `json:"level_scores"`
	Status               SessionStatus         `json:"status"`
	ExamComplete         bool                  `json:"exam_complete"`
	StartedAt            time.Time             `json:"started_at"`
	CompletedAt          *time.Time            `json:"completed_at,omitempty"`
	FinalLevel           *Level                `json:"final_level,omitempty"`
	FinalScore           *float64              `json:"final_score,omitempty"`
	Report               *Report               `json:"final_report,omitempty"`
}

// StatusView is the cheap status projection of a session.
type StatusView struct {
	SessionID    string        `json:"session_id"`
	Status       SessionStatus `json:"status"`
	CurrentLevel Level         `json:"current_level"`
	ExamComplete bool          `json:"exam_complete"`
	FinalLevel   *Level        `json:"final_level,omitempty"`
	FinalScore   *float64      `json:"final_score,omitempty"`
}

// Outcome is the result kind of a submitted response.
type Outcome string

const (
	OutcomeContinue      Outcome = "continue"
	OutcomeLevelComplete Outcome = "level_complete"
	OutcomeExamComplete  Outcome = "exam_complete"
)

// LevelResult summarises a finished level.
type LevelResult struct {
	Level        Level   `json:"level"`
	Label        string  `json:"label,omitempty"`
	Percentage   float64 `json:"percentage"`
	EarnedPoints float64 `json:"earned_points"`
	MaxPoints    float64 `json:"max_points"`
	Passed       bool    `json:"passed"`
	NextLevel    Level   `json:"next_level,omitempty"`
}

// StartResult is returned when an exam starts.
type StartResult struct {
	SessionID  string             `json:"session_id"`
	Question   *FormattedQuestion `json:"question"`
	ExamStatus string             `json:"exam_status"`
}

// SubmitResult is returned for every submitted response.
type SubmitResult struct {
	Status       Outcome            `json:"status"`
	NextQuestion *FormattedQuestion `json:"next_question,omitempty"`
	LevelResult  *LevelResult       `json:"level_result,omitempty"`
	FinalReport  *Report            `json:"final_report,omitempty"`
	ExamComplete bool               `json:"exam_complete"`
}
