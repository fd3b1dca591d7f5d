// Package scoring turns a candidate response into weighted skill points.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pavelanni/placement/internal/assess"
	"github.com/pavelanni/placement/internal/audio"
	"github.com/pavelanni/placement/internal/config"
	"github.com/pavelanni/placement/internal/i18n"
	"github.com/pavelanni/placement/internal/metrics"
	"github.com/pavelanni/placement/internal/model"
)

// AudioStore answers questions about stored response recordings.
type AudioStore interface {
	Path(ref string) string
	Exists(ref string) bool
	Duration(ref string) (seconds float64, exact bool, err error)
}

// Evaluator scores responses. It is safe for concurrent use.
type Evaluator struct {
	cfg      *config.Exam
	provider assess.Provider
	audio    AudioStore

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEvaluator returns an Evaluator. A nil provider makes every audio
// response fall back to a mock evaluation; a nil src seeds from the clock.
func NewEvaluator(cfg *config.Exam, provider assess.Provider, store AudioStore, src rand.Source) *Evaluator {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>13|1)
	}
	if store == nil {
		store = audio.Local{}
	}
	return &Evaluator{cfg: cfg, provider: provider, audio: store, rng: rand.New(src)}
}

// Evaluate scores one response to q. It never fails: anything that prevents
// a real assessment yields a mock evaluation flagged as such.
func (e *Evaluator) Evaluate(ctx context.Context, sub model.Submission, q model.FormattedQuestion) model.EvaluationResult {
	profileName, profile := e.cfg.Profile(q.Type)
	levelW := e.cfg.LevelWeight(q.Level)

	var res model.EvaluationResult
	switch {
	case q.Type == model.TypeMinimalPair:
		res = exactMatch(sub.ResponseData, correctAnswer(q))
	case q.Type == model.TypeDictation:
		res = e.dictation(ctx, sub, q)
	case q.Type.IsMCQ() || sub.ResponseType == model.ResponseText:
		res = exactMatch(sub.ResponseData, correctAnswer(q))
	case sub.ResponseType == model.ResponseAudio:
		res = e.audioResponse(ctx, sub, q)
	default:
		res = e.mock(i18n.T(ctx, "MockUnknownResponse"))
	}

	res.ProfileName = profileName
	res.ProfileWeights = profile
	res.LevelWeights = levelW
	res.Scores, res.OverallWeighted = Combine(res.AdjustedScores, profile, levelW)

	metrics.ResponsesEvaluated.WithLabelValues(string(res.Method), metrics.MockLabel(res.IsMockData)).Inc()
	if res.IsMockData {
		slog.Warn("using mock evaluation", "q_id", q.QID, "type", q.Type, "note", res.Note)
	}
	return res
}

func newResult(method model.Method, raw model.Skills) model.EvaluationResult {
	return model.EvaluationResult{
		Method:              method,
		RawScores:           raw,
		AdjustedScores:      raw,
		RelevancyMultiplier: 1,
	}
}

func correctAnswer(q model.FormattedQuestion) string {
	if q.CorrectAnswer != "" {
		return q.CorrectAnswer
	}
	return q.Metadata.CorrectAnswer
}

func expectedText(q model.FormattedQuestion) string {
	if q.ExpectedText != "" {
		return q.ExpectedText
	}
	return q.Metadata.ExpectedText
}

// exactMatch scores 100 on every skill for a trimmed exact match, else 0.
func exactMatch(answer, correct string) model.EvaluationResult {
	answer = strings.TrimSpace(answer)
	ok := correct != "" && answer == correct
	score := 0.0
	if ok {
		score = 100
	}
	res := newResult(model.MethodExactMatch, model.Uniform(score))
	res.Match = &model.MatchDetail{UserAnswer: answer, CorrectAnswer: correct, IsCorrect: ok}
	return res
}

func (e *Evaluator) dictation(ctx context.Context, sub model.Submission, q model.FormattedQuestion) model.EvaluationResult {
	expected := expectedText(q)
	if strings.TrimSpace(expected) == "" {
		return e.mock(i18n.T(ctx, "MockMissingDictation"))
	}
	d := WordAccuracy(expected, sub.ResponseData)
	res := newResult(model.MethodWordAccuracy, model.Skills{Vocabulary: d.WordAccuracy})
	res.Dictation = &d
	return res
}

// WordAccuracy compares user text to the expected text word by word at the
// same positions, ignoring case and punctuation.
func WordAccuracy(expected, user string) model.DictationDetail {
	exp := strings.Fields(stripPunct(strings.ToLower(expected)))
	got := strings.Fields(stripPunct(strings.ToLower(user)))
	correct := 0
	for i, w := range exp {
		if i < len(got) && got[i] == w {
			correct++
		}
	}
	acc := 0.0
	if len(exp) > 0 {
		acc = float64(correct) / float64(len(exp)) * 100
	}
	return model.DictationDetail{
		ExpectedText: strings.TrimSpace(expected),
		UserInput:    strings.TrimSpace(user),
		WordAccuracy: acc,
		CorrectWords: correct,
		TotalWords:   len(exp),
	}
}

func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			return r
		}
		return -1
	}, s)
}

func (e *Evaluator) audioResponse(ctx context.Context, sub model.Submission, q model.FormattedQuestion) model.EvaluationResult {
	if e.provider == nil {
		return e.mock(i18n.T(ctx, "MockNoProvider"))
	}
	if !e.audio.Exists(sub.AudioPath) {
		return e.mock(i18n.T(ctx, "MockAudioNotFound"))
	}

	req := assess.Request{AudioPath: e.audio.Path(sub.AudioPath), Accent: e.cfg.Accent}
	if q.Metadata.Accent != "" {
		req.Accent = q.Metadata.Accent
	}
	method := model.MethodScripted
	switch {
	case q.Type == model.TypeRepeatSentence:
		req.Mode = assess.ModeScripted
		req.ExpectedText = expectedText(q)
		if req.ExpectedText == "" {
			return e.mock(i18n.T(ctx, "MockNoExpectedText"))
		}
	case q.Type.IsUnscripted():
		req.Mode = assess.ModeUnscripted
		method = model.MethodUnscripted
		req.Question = q.Prompt
		req.ContextDescription = fmt.Sprintf("%s assessment", q.Type)
		if c := q.Metadata.Context; c != nil {
			if c.Question != "" {
				req.Question = c.Question
			}
			if c.ContextDescription != "" {
				req.ContextDescription = c.ContextDescription
			}
		}
	default:
		return e.mock(i18n.Td(ctx, "MockUnsupportedType", map[string]any{"Type": q.Type}))
	}

	doc, err := e.provider.Assess(ctx, req)
	if err != nil {
		slog.Warn("assessment failed", "q_id", q.QID, "mode", req.Mode, "error", err)
		return e.mock(i18n.Td(ctx, "MockProviderError", map[string]any{"Error": err.Error()}))
	}
	parsed, err := assess.Parse(doc)
	if err != nil {
		slog.Warn("unreadable assessment result", "q_id", q.QID, "error", err)
		res := e.mock(i18n.T(ctx, "MockParseError"))
		res.ProviderResponse = doc
		return res
	}

	res := newResult(method, parsed.Skills)
	res.ProviderResponse = doc
	res.Transcription = parsed.Transcription
	res.Words = parsed.Words
	res.Relevance = parsed.Relevance

	adjusted, mult := ApplyRelevancy(parsed.Skills, parsed.Relevance)
	res.RelevancyMultiplier = mult
	if q.Type.HasDurationPenalty() && mult > 0 {
		d := e.duration(sub.AudioPath, q)
		d.FluencyBefore = adjusted.Fluency
		adjusted = ApplyDurationPenalty(adjusted, d.Multiplier)
		d.FluencyAfter = adjusted.Fluency
		res.Duration = &d
	}
	res.AdjustedScores = adjusted
	return res
}

// duration measures the recording and picks the fluency multiplier. The
// measurement of compressed audio is a size-based estimate, so the chosen
// band can be off by one for borderline answers.
func (e *Evaluator) duration(ref string, q model.FormattedQuestion) model.DurationDetail {
	expected := q.Timing.ResponseTimeSec
	if expected <= 0 {
		expected = e.cfg.Timing(q.Level, q.Type).ResponseTimeSec
	}
	sec, exact, err := e.audio.Duration(ref)
	if err != nil || sec <= 0 {
		slog.Warn("audio duration unknown, assuming default", "ref", ref, "error", err)
		sec, exact = audio.DefaultDurationSec, false
	}
	pct := 100.0
	if expected > 0 {
		pct = sec / float64(expected) * 100
	}
	return model.DurationDetail{
		Seconds:         sec,
		MaxSeconds:      expected,
		Percentage:      pct,
		Multiplier:      DurationMultiplier(pct),
		EstimatedLength: !exact,
	}
}

// mock produces a plausible placeholder score: a base in [60,90] with up to
// ten points of jitter per skill.
func (e *Evaluator) mock(note string) model.EvaluationResult {
	e.mu.Lock()
	base := 60 + e.rng.Float64()*30
	var raw model.Skills
	jitter := func() float64 {
		return math.Max(0, math.Min(100, base+e.rng.Float64()*20-10))
	}
	raw.Pronunciation = jitter()
	raw.Fluency = jitter()
	raw.Grammar = jitter()
	raw.Vocabulary = jitter()
	e.mu.Unlock()

	res := newResult(model.MethodMock, raw)
	res.IsMockData = true
	res.Note = note
	return res
}
