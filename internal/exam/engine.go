// Package exam runs adaptive placement sessions: it serves questions level by
// level, records evaluated responses and decides when a candidate moves up or
// the exam ends.
package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/placement/internal/config"
	"github.com/pavelanni/placement/internal/i18n"
	"github.com/pavelanni/placement/internal/metrics"
	"github.com/pavelanni/placement/internal/model"
	"github.com/pavelanni/placement/internal/selector"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionComplete  = errors.New("exam already complete")
	ErrExamInProgress   = errors.New("exam still in progress")
	ErrStaleSubmission  = errors.New("session advanced while the response was evaluated")
	ErrQuestionMismatch = errors.New("response does not answer the current question")
)

// Drawer draws the questions of a level.
type Drawer interface {
	Draw(lvl model.Level) ([]model.FormattedQuestion, error)
}

// Evaluator scores a single response.
type Evaluator interface {
	Evaluate(ctx context.Context, sub model.Submission, q model.FormattedQuestion) model.EvaluationResult
}

// ReportSink receives every final report once its exam completes.
type ReportSink interface {
	ArchiveReport(r model.Report) error
}

// Engine owns all exam sessions.
type Engine struct {
	cfg      *config.Exam
	draw     Drawer
	eval     Evaluator
	sink     ReportSink
	now      func() time.Time
	sessions *sessions
}

// Option configures an Engine.
type Option func(*Engine)

// WithReportSink archives final reports in s.
func WithReportSink(s ReportSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an Engine.
func New(cfg *config.Exam, draw Drawer, eval Evaluator, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		draw:     draw,
		eval:     eval,
		now:      time.Now,
		sessions: newSessions(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the exam configuration the engine runs with.
func (e *Engine) Config() *config.Exam {
	return e.cfg
}

// SessionCount returns the number of sessions held in memory.
func (e *Engine) SessionCount() int {
	return e.sessions.len()
}

// StartExam creates a session at the first level and serves its first
// question.
func (e *Engine) StartExam(ctx context.Context, userID string) (*model.StartResult, error) {
	lvl := e.cfg.FirstLevel()
	qs, err := e.draw.Draw(lvl)
	if err != nil {
		return nil, fmt.Errorf("start exam: %w", err)
	}

	sess := &model.ExamSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		CurrentLevel:   lvl,
		LevelQuestions: qs,
		LevelScores:    map[model.Level]*model.LevelScore{lvl: {Level: lvl, Max: e.cfg.LevelMax(lvl)}},
		Status:         model.StatusInProgress,
		StartedAt:      e.now(),
	}
	first := selector.Serve(sess)
	e.sessions.put(sess)

	metrics.SessionsStarted.Inc()
	metrics.ActiveSessions.Inc()
	slog.Info("exam started", "session_id", sess.ID, "user_id", userID, "level", lvl, "questions", len(qs))

	return &model.StartResult{SessionID: sess.ID, Question: first, ExamStatus: "started"}, nil
}

// SubmitResponse evaluates a response to the session's current question
// and advances the session. Evaluation runs without holding the session
// lock; the result is committed only if the session has not moved on in
// the meantime, so concurrent submissions never double-advance the cursor.
func (e *Engine) SubmitResponse(ctx context.Context, sessionID string, sub model.Submission) (*model.SubmitResult, error) {
	ent, ok := e.sessions.get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	ent.mu.Lock()
	sess := ent.sess
	q := selector.Serve(sess)
	if q == nil {
		ent.mu.Unlock()
		return nil, ErrSessionComplete
	}
	if sub.QuestionID != "" && sub.QuestionID != q.QID {
		ent.mu.Unlock()
		return nil, fmt.Errorf("%w: got %s, current is %s", ErrQuestionMismatch, sub.QuestionID, q.QID)
	}
	lvl, idx := sess.CurrentLevel, sess.CurrentQuestionIndex
	ent.mu.Unlock()

	sub.QuestionID = q.QID
	sub.Level = lvl
	sub.ReceivedAt = e.now()

	// Once submitted, a response is evaluated to completion even if the
	// caller goes away.
	res := e.eval.Evaluate(context.WithoutCancel(ctx), sub, *q)

	ent.mu.Lock()
	if sess.Status == model.StatusCompleted || sess.CurrentLevel != lvl || sess.CurrentQuestionIndex != idx {
		ent.mu.Unlock()
		return nil, ErrStaleSubmission
	}
	ls := sess.LevelScores[lvl]
	ls.Questions = append(ls.Questions, model.ScoreRecord{
		QuestionID:    q.QID,
		Scores:        res.Scores,
		WeightedScore: res.OverallWeighted,
		Evaluation:    res,
		Response:      sub,
		Question:      *q,
	})
	sess.CurrentQuestionIndex++

	var out *model.SubmitResult
	if sess.CurrentQuestionIndex < len(sess.LevelQuestions) {
		out = &model.SubmitResult{Status: model.OutcomeContinue, NextQuestion: selector.Serve(sess)}
	} else {
		out = e.finishLevel(ctx, sess)
	}
	var report *model.Report
	if out.ExamComplete {
		report = sess.Report
	}
	ent.mu.Unlock()

	if report != nil {
		e.archive(*report)
	}
	return out, nil
}

// finishLevel scores the level just completed and either opens the next
// level or completes the exam. The caller holds the session lock.
func (e *Engine) finishLevel(ctx context.Context, sess *model.ExamSession) *model.SubmitResult {
	lvl := sess.CurrentLevel
	ls := sess.LevelScores[lvl]
	scoreLevel(e.cfg, ls)
	sess.CompletedLevels = append(sess.CompletedLevels, lvl)

	outcome := metrics.OutcomeFailed
	if ls.Passed {
		outcome = metrics.OutcomePassed
	}
	metrics.LevelsCompleted.WithLabelValues(string(lvl), outcome).Inc()
	slog.Info("level complete", "session_id", sess.ID, "level", lvl,
		"percentage", round1(ls.Percentage), "passed", ls.Passed)

	lr := &model.LevelResult{
		Level:        lvl,
		Label:        i18n.LevelLabel(ctx, lvl),
		Percentage:   round1(ls.Percentage),
		EarnedPoints: round1(ls.Earned.Sum()),
		MaxPoints:    round1(ls.Max.Sum()),
		Passed:       ls.Passed,
	}

	if ls.Passed {
		if next, ok := e.cfg.NextLevel(lvl); ok {
			qs, err := e.draw.Draw(next)
			if err != nil {
				slog.Error("cannot open next level, completing exam", "session_id", sess.ID, "level", next, "error", err)
			} else {
				sess.CurrentLevel = next
				sess.CurrentQuestionIndex = 0
				sess.LevelQuestions = qs
				sess.LevelScores[next] = &model.LevelScore{Level: next, Max: e.cfg.LevelMax(next)}
				if q := selector.Serve(sess); q != nil {
					lr.NextLevel = next
					return &model.SubmitResult{Status: model.OutcomeLevelComplete, NextQuestion: q, LevelResult: lr}
				}
			}
		}
	}

	out := e.complete(ctx, sess)
	out.LevelResult = lr
	return out
}

// complete closes the session and stores its final report. The caller holds
// the session lock.
func (e *Engine) complete(ctx context.Context, sess *model.ExamSession) *model.SubmitResult {
	done := e.now()
	sess.Status = model.StatusCompleted
	sess.ExamComplete = true
	sess.CompletedAt = &done

	r := BuildReport(ctx, e.cfg, sess)
	sess.Report = r
	final := r.FinalLevel
	score := r.OverallPerformance.OverallScore
	sess.FinalLevel = &final
	sess.FinalScore = &score

	metrics.ExamsCompleted.Inc()
	metrics.ActiveSessions.Dec()
	slog.Info("exam complete", "session_id", sess.ID, "final_level", final, "overall_score", score,
		"certificate_eligible", r.CertificateEligible)

	return &model.SubmitResult{Status: model.OutcomeExamComplete, FinalReport: r, ExamComplete: true}
}

func (e *Engine) archive(r model.Report) {
	if e.sink == nil {
		return
	}
	if err := e.sink.ArchiveReport(r); err != nil {
		slog.Error("archive report", "session_id", r.SessionID, "error", err)
	}
}

// GetStatus returns the cheap status projection of a session.
func (e *Engine) GetStatus(sessionID string) (*model.StatusView, error) {
	ent, ok := e.sessions.get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	s := ent.sess
	return &model.StatusView{
		SessionID:    s.ID,
		Status:       s.Status,
		CurrentLevel: s.CurrentLevel,
		ExamComplete: s.ExamComplete,
		FinalLevel:   s.FinalLevel,
		FinalScore:   s.FinalScore,
	}, nil
}

// GetReport returns the final report of a completed session.
func (e *Engine) GetReport(sessionID string) (*model.Report, error) {
	ent, ok := e.sessions.get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.sess.Report == nil {
		return nil, ErrExamInProgress
	}
	return ent.sess.Report, nil
}

// CurrentQuestion returns the question a session is waiting on.
func (e *Engine) CurrentQuestion(sessionID string) (*model.FormattedQuestion, error) {
	ent, ok := e.sessions.get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	q := selector.Serve(ent.sess)
	if q == nil {
		return nil, ErrSessionComplete
	}
	return q, nil
}
