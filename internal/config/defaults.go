package config

import "github.com/pavelanni/placement/internal/model"

// fallbackTiming applies to question types with no timing entry anywhere.
var fallbackTiming = model.Timing{ThinkTimeSec: 5, ResponseTimeSec: 30, TotalEstimatedSec: 35}

var builtinTiming = map[model.QuestionType]model.Timing{
	model.TypeRepeatSentence:   {ThinkTimeSec: 3, ResponseTimeSec: 15, TotalEstimatedSec: 18},
	model.TypeMinimalPair:      {ThinkTimeSec: 2, ResponseTimeSec: 15, TotalEstimatedSec: 17},
	model.TypeDictation:        {ThinkTimeSec: 3, ResponseTimeSec: 12, TotalEstimatedSec: 15},
	model.TypeListenMCQ:        {ThinkTimeSec: 5, ResponseTimeSec: 25, TotalEstimatedSec: 30},
	model.TypeImageDescription: {ThinkTimeSec: 10, ResponseTimeSec: 80, TotalEstimatedSec: 90},
	model.TypeOpenResponse:     {ThinkTimeSec: 30, ResponseTimeSec: 120, TotalEstimatedSec: 150},
	model.TypeBestResponseMCQ:  {ThinkTimeSec: 5, ResponseTimeSec: 25, TotalEstimatedSec: 30},
	model.TypeSequence:         {ThinkTimeSec: 3, ResponseTimeSec: 17, TotalEstimatedSec: 20},
	model.TypeListenAnswer:     {ThinkTimeSec: 5, ResponseTimeSec: 25, TotalEstimatedSec: 30},
}

func counts(rs, or, mp int) LevelPlan {
	return LevelPlan{TypeCounts: map[model.QuestionType]int{
		model.TypeRepeatSentence: rs,
		model.TypeOpenResponse:   or,
		model.TypeMinimalPair:    mp,
	}}
}

// Default returns the built-in six-level configuration.
func Default() *Exam {
	timing := make(map[model.QuestionType]model.Timing, len(builtinTiming))
	for t, tm := range builtinTiming {
		timing[t] = tm
	}
	c := &Exam{
		Accent: "us",
		Levels: Levels{
			Order:                []model.Level{"A1", "A2", "B1", "B2", "C1", "C2"},
			GateThreshold:        75,
			CertificateThreshold: 50,
			PerLevel: map[model.Level]LevelPlan{
				"A1": counts(1, 1, 2),
				"A2": counts(1, 0, 2),
				"B1": counts(1, 0, 1),
				"B2": counts(0, 1, 1),
				"C1": counts(1, 1, 2),
				"C2": counts(0, 1, 1),
			},
		},
		TypeToProfile: map[model.QuestionType]string{
			model.TypeRepeatSentence:   "pron_only",
			model.TypeMinimalPair:      "pron_only",
			model.TypeOpenResponse:     "unscripted_mixed",
			model.TypeImageDescription: "unscripted_mixed",
			model.TypeListenAnswer:     "unscripted_mixed",
			model.TypeDictation:        "dictation_vocab",
			model.TypeListenMCQ:        "comprehension",
			model.TypeBestResponseMCQ:  "comprehension",
		},
		ScoringProfiles: map[string]model.Skills{
			"pron_only":        {Pronunciation: 1},
			"unscripted_mixed": {Pronunciation: 0.25, Fluency: 0.55, Grammar: 0.1, Vocabulary: 0.1},
			"dictation_vocab":  {Vocabulary: 1},
			"comprehension":    {Grammar: 0.5, Vocabulary: 0.5},
		},
		LevelWeights: map[model.Level]model.Skills{
			"A1": {Pronunciation: 0.4, Fluency: 0.3, Grammar: 0.15, Vocabulary: 0.15},
			"A2": {Pronunciation: 0.35, Fluency: 0.3, Grammar: 0.175, Vocabulary: 0.175},
			"B1": {Pronunciation: 0.3, Fluency: 0.3, Grammar: 0.2, Vocabulary: 0.2},
			"B2": {Pronunciation: 0.25, Fluency: 0.3, Grammar: 0.225, Vocabulary: 0.225},
			"C1": {Pronunciation: 0.2, Fluency: 0.3, Grammar: 0.25, Vocabulary: 0.25},
			"C2": {Pronunciation: 0.2, Fluency: 0.25, Grammar: 0.275, Vocabulary: 0.275},
		},
		QuestionTiming: timing,
		Source:         "builtin:default",
	}
	c.seal()
	return c
}

// Minimal returns the degraded single-level configuration used when the
// configured document cannot be used.
func Minimal() *Exam {
	c := Default()
	c.Levels.Order = []model.Level{"A1"}
	c.Levels.PerLevel = map[model.Level]LevelPlan{
		"A1": {TypeCounts: map[model.QuestionType]int{model.TypeOpenResponse: 1}},
	}
	c.Source = "builtin:minimal"
	c.seal()
	return c
}
