package exam

import (
	"context"
	"math"
	"slices"

	"github.com/pavelanni/placement/internal/config"
	"github.com/pavelanni/placement/internal/i18n"
	"github.com/pavelanni/placement/internal/model"
)

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}

// BuildReport computes the cumulative report of a session. Earned points
// are normalized against the theoretical maximum of the whole configured
// exam, so stopping early yields a low overall percentage.
func BuildReport(ctx context.Context, cfg *config.Exam, sess *model.ExamSession) *model.Report {
	examMax := cfg.ExamMax()

	var (
		earned    model.Skills
		attempted []model.Level
		answered  int
		mock      bool
	)
	for lvl, ls := range sess.LevelScores {
		if len(ls.Questions) == 0 {
			continue
		}
		attempted = append(attempted, lvl)
		answered += len(ls.Questions)
		for _, rec := range ls.Questions {
			earned = earned.Add(rec.Scores)
			mock = mock || rec.Evaluation.IsMockData
		}
	}
	slices.SortFunc(attempted, func(a, b model.Level) int {
		return cfg.Rank(a) - cfg.Rank(b)
	})
	highest := cfg.FirstLevel()
	if len(attempted) > 0 {
		highest = attempted[len(attempted)-1]
	}

	breakdown := make(map[model.Skill]model.SkillResult, len(model.AllSkills))
	for _, sk := range model.AllSkills {
		breakdown[sk] = model.SkillResult{
			Percentage:     round1(percent(earned.Get(sk), examMax.Get(sk))),
			PointsEarned:   round1(earned.Get(sk)),
			PointsPossible: round1(examMax.Get(sk)),
		}
	}
	overall := percent(earned.Sum(), examMax.Sum())
	total := cfg.TotalQuestions()

	r := &model.Report{
		SessionID:     sess.ID,
		UserID:        sess.UserID,
		ExamDate:      sess.StartedAt,
		ScoringMethod: model.ScoringMethodCumulative,
		FinalLevel:    highest,
		OverallPerformance: model.OverallPerformance{
			OverallScore:   round1(overall),
			PointsEarned:   round1(earned.Sum()),
			PointsPossible: round1(examMax.Sum()),
		},
		SkillBreakdown: breakdown,
		ExamProgress: model.ExamProgress{
			QuestionsAttempted:      answered,
			TotalQuestionsAvailable: total,
			CompletionPercentage:    round1(percent(float64(answered), float64(total))),
			HighestLevelAttempted:   highest,
			LevelsAttempted:         attempted,
		},
		ProgressSummary:      i18n.Tp(ctx, "QuestionsAttempted", answered),
		LevelDetails:         levelDetails(ctx, cfg, sess),
		CertificateEligible:  overall >= cfg.Levels.CertificateThreshold,
		CertificateThreshold: cfg.Levels.CertificateThreshold,
		ContainsMockData:     mock,
	}
	if sess.CompletedAt != nil {
		done := *sess.CompletedAt
		r.CompletionDate = &done
	}
	return r
}

func levelDetails(ctx context.Context, cfg *config.Exam, sess *model.ExamSession) []model.LevelDetail {
	out := make([]model.LevelDetail, 0, len(sess.CompletedLevels))
	for _, lvl := range sess.CompletedLevels {
		ls, ok := sess.LevelScores[lvl]
		if !ok {
			continue
		}
		d := model.LevelDetail{
			Level:              lvl,
			Label:              i18n.LevelLabel(ctx, lvl),
			QuestionsCompleted: len(ls.Questions),
			EarnedPoints:       ls.Earned,
			MaxPoints:          ls.Max,
			Percentage:         round1(ls.Percentage),
			Passed:             ls.Passed,
			ThresholdRequired:  cfg.Levels.GateThreshold,
			Questions:          ls.Questions,
		}
		for _, rec := range ls.Questions {
			if rec.Evaluation.IsMockData {
				d.MockAnswers++
			}
		}
		out = append(out, d)
	}
	return out
}

// scoreLevel closes the ledger of lvl: the earned points are compared to
// the level's theoretical maximum over its configured question counts.
func scoreLevel(cfg *config.Exam, ls *model.LevelScore) {
	var earned model.Skills
	for _, rec := range ls.Questions {
		earned = earned.Add(rec.Scores)
	}
	ls.Earned = earned
	ls.Max = cfg.LevelMax(ls.Level)
	ls.Percentage = percent(earned.Sum(), ls.Max.Sum())
	ls.Passed = ls.Percentage >= cfg.Levels.GateThreshold
	ls.Evaluated = true
}
