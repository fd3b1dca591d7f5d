package model

// Skill names one of the four scored dimensions.
type Skill string

const (
	SkillPronunciation Skill = "pronunciation"
	SkillFluency       Skill = "fluency"
	SkillGrammar       Skill = "grammar"
	SkillVocabulary    Skill = "vocabulary"
)

// AllSkills lists the skills in report order.
var AllSkills = []Skill{SkillPronunciation, SkillFluency, SkillGrammar, SkillVocabulary}

// Skills is a vector over the four skills. It is used both for scores
// (0..100) and for weights (0..1).
type Skills struct {
	Pronunciation float64 `json:"pronunciation" yaml:"pronunciation"`
	Fluency       float64 `json:"fluency" yaml:"fluency"`
	Grammar       float64 `json:"grammar" yaml:"grammar"`
	Vocabulary    float64 `json:"vocabulary" yaml:"vocabulary"`
}

// Uniform returns a vector with every skill set to v.
func Uniform(v float64) Skills {
	return Skills{Pronunciation: v, Fluency: v, Grammar: v, Vocabulary: v}
}

// Get returns the value of one skill.
func (s Skills) Get(k Skill) float64 {
	switch k {
	case SkillPronunciation:
		return s.Pronunciation
	case SkillFluency:
		return s.Fluency
	case SkillGrammar:
		return s.Grammar
	case SkillVocabulary:
		return s.Vocabulary
	}
	return 0
}

// Sum returns the sum over all skills.
func (s Skills) Sum() float64 {
	return s.Pronunciation + s.Fluency + s.Grammar + s.Vocabulary
}

// Add returns the element-wise sum.
func (s Skills) Add(o Skills) Skills {
	return Skills{
		Pronunciation: s.Pronunciation + o.Pronunciation,
		Fluency:       s.Fluency + o.Fluency,
		Grammar:       s.Grammar + o.Grammar,
		Vocabulary:    s.Vocabulary + o.Vocabulary,
	}
}

// Mul returns the element-wise product.
func (s Skills) Mul(o Skills) Skills {
	return Skills{
		Pronunciation: s.Pronunciation * o.Pronunciation,
		Fluency:       s.Fluency * o.Fluency,
		Grammar:       s.Grammar * o.Grammar,
		Vocabulary:    s.Vocabulary * o.Vocabulary,
	}
}

// Scale multiplies every skill by f.
func (s Skills) Scale(f float64) Skills {
	return Skills{
		Pronunciation: s.Pronunciation * f,
		Fluency:       s.Fluency * f,
		Grammar:       s.Grammar * f,
		Vocabulary:    s.Vocabulary * f,
	}
}

// Method records which evaluation path produced a result.
type Method string

const (
	MethodExactMatch   Method = "exact_match"
	MethodWordAccuracy Method = "word_accuracy"
	MethodScripted     Method = "provider_scripted"
	MethodUnscripted   Method = "provider_unscripted"
	MethodMock         Method = "mock"
)

// Relevance is the provider's verdict on whether an answer was on topic.
type Relevance string

const (
	RelevanceRelevant Relevance = "RELEVANT"
	RelevancePartial  Relevance = "PARTIALLY_RELEVANT"
	RelevanceNot      Relevance = "NOT_RELEVANT"
	RelevanceUnknown  Relevance = ""
)

// PhonemeDetail is the provider's assessment of one phoneme.
type PhonemeDetail struct {
	IPA         string   `json:"ipa_label"`
	Score       float64  `json:"phoneme_score"`
	ExpectedIPA string   `json:"expected_ipa,omitempty"`
	ActualIPA   string   `json:"actual_ipa,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	StartTime   *float64 `json:"start_time,omitempty"`
	EndTime     *float64 `json:"end_time,omitempty"`
}

// WordDetail is the provider's assessment of one spoken word.
type WordDetail struct {
	Word      string          `json:"word_text"`
	Score     float64         `json:"word_score"`
	StartTime *float64        `json:"start_time,omitempty"`
	EndTime   *float64        `json:"end_time,omitempty"`
	Phonemes  []PhonemeDetail `json:"phonemes,omitempty"`
}

// MatchDetail explains an MCQ or minimal-pair comparison.
type MatchDetail struct {
	UserAnswer    string `json:"user_answer"`
	CorrectAnswer string `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
}

// DictationDetail explains a dictation comparison.
type DictationDetail struct {
	ExpectedText string  `json:"expected_text"`
	UserInput    string  `json:"user_input"`
	WordAccuracy float64 `json:"word_accuracy"`
	CorrectWords int     `json:"correct_words"`
	TotalWords   int     `json:"total_words"`
}

// DurationDetail explains the short-answer fluency penalty.
type DurationDetail struct {
	Seconds         float64 `json:"duration_seconds"`
	MaxSeconds      int     `json:"max_seconds"`
	Percentage      float64 `json:"duration_percentage"`
	Multiplier      float64 `json:"multiplier"`
	FluencyBefore   float64 `json:"fluency_before"`
	FluencyAfter    float64 `json:"fluency_after"`
	EstimatedLength bool    `json:"estimated,omitempty"`
}

// EvaluationResult is the scoring of one answer, with its provenance.
type EvaluationResult struct {
	Method          Method  `json:"method"`
	RawScores       Skills  `json:"raw_scores"`
	AdjustedScores  Skills  `json:"adjusted_scores"`
	Scores          Skills  `json:"scores"`
	OverallWeighted float64 `json:"overall_weighted"`
	ProfileName     string  `json:"profile_name"`
	ProfileWeights  Skills  `json:"profile_weights"`
	LevelWeights    Skills  `json:"level_weights"`
	IsMockData      bool    `json:"is_mock_data"`
	Note            string  `json:"note,omitempty"`

	Relevance           Relevance       `json:"relevance,omitempty"`
	RelevancyMultiplier float64         `json:"relevancy_multiplier"`
	Duration            *DurationDetail `json:"duration,omitempty"`

	Match     *MatchDetail     `json:"match,omitempty"`
	Dictation *DictationDetail `json:"dictation,omitempty"`

	Transcription string       `json:"transcription,omitempty"`
	Words         []WordDetail `json:"words,omitempty"`
	// ProviderResponse keeps the untouched provider payload for audit.
	ProviderResponse map[string]any `json:"provider_response,omitempty"`
}
