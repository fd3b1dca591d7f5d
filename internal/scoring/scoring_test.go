package scoring

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/placement/internal/assess"
	"github.com/pavelanni/placement/internal/audio"
	"github.com/pavelanni/placement/internal/config"
	"github.com/pavelanni/placement/internal/model"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func skillsNear(a, b model.Skills) bool {
	for _, sk := range model.AllSkills {
		if !near(a.Get(sk), b.Get(sk)) {
			return false
		}
	}
	return true
}

type fakeProvider struct {
	doc  assess.Document
	err  error
	reqs []assess.Request
}

func (f *fakeProvider) Assess(_ context.Context, req assess.Request) (assess.Document, error) {
	f.reqs = append(f.reqs, req)
	return f.doc, f.err
}

type fakeAudio struct {
	seconds float64
	err     error
	missing bool
}

func (f fakeAudio) Path(ref string) string { return "/audio/" + ref }
func (f fakeAudio) Exists(string) bool     { return !f.missing }
func (f fakeAudio) Duration(string) (float64, bool, error) {
	return f.seconds, true, f.err
}

func newTestEvaluator(p assess.Provider, a AudioStore) (*Evaluator, *config.Exam) {
	cfg := config.Default()
	return NewEvaluator(cfg, p, a, rand.NewPCG(7, 8)), cfg
}

func TestCombineLinear(t *testing.T) {
	profile := model.Skills{Pronunciation: 0.25, Fluency: 0.55, Grammar: 0.1, Vocabulary: 0.1}
	level := model.Skills{Pronunciation: 0.4, Fluency: 0.3, Grammar: 0.15, Vocabulary: 0.15}
	raw := model.Skills{Pronunciation: 40, Fluency: 30, Grammar: 20, Vocabulary: 10}

	final, overall := Combine(raw, profile, level)
	want := model.Skills{Pronunciation: 40 * 0.25 * 0.4, Fluency: 30 * 0.55 * 0.3, Grammar: 20 * 0.1 * 0.15, Vocabulary: 10 * 0.1 * 0.15}
	if !skillsNear(final, want) {
		t.Errorf("final = %+v, want %+v", final, want)
	}
	if !near(overall, want.Sum()) {
		t.Errorf("overall = %f, want sum %f", overall, want.Sum())
	}

	doubled, overall2 := Combine(raw.Scale(2), profile, level)
	if !skillsNear(doubled, final.Scale(2)) || !near(overall2, 2*overall) {
		t.Errorf("doubling raw scores must double the contribution")
	}
}

func TestRelevancy(t *testing.T) {
	raw := model.Skills{Pronunciation: 95, Fluency: 80, Grammar: 70, Vocabulary: 60}
	tests := []struct {
		r    model.Relevance
		want model.Skills
		mult float64
	}{
		{model.RelevanceRelevant, raw, 1},
		{model.RelevanceUnknown, raw, 1},
		{model.RelevancePartial, raw.Scale(0.5), 0.5},
		{model.RelevanceNot, model.Skills{}, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.r), func(t *testing.T) {
			got, m := ApplyRelevancy(raw, tt.r)
			if got != tt.want || m != tt.mult {
				t.Errorf("got %+v x%v, want %+v x%v", got, m, tt.want, tt.mult)
			}
		})
	}
	// Relevant is idempotent.
	once, _ := ApplyRelevancy(raw, model.RelevanceRelevant)
	twice, _ := ApplyRelevancy(once, model.RelevanceRelevant)
	if twice != raw {
		t.Errorf("relevant classification must leave scores unchanged")
	}
}

func TestDurationMultiplier(t *testing.T) {
	tests := []struct {
		pct  float64
		want float64
	}{
		{0, 0.1}, {9.9, 0.1}, {10, 0.4}, {16.7, 0.4}, {24.9, 0.4},
		{25, 0.7}, {49.9, 0.7}, {50, 0.85}, {74.9, 0.85}, {75, 1}, {250, 1},
	}
	for _, tt := range tests {
		if got := DurationMultiplier(tt.pct); got != tt.want {
			t.Errorf("DurationMultiplier(%v) = %v, want %v", tt.pct, got, tt.want)
		}
	}
	raw := model.Skills{Pronunciation: 90, Fluency: 80, Grammar: 70, Vocabulary: 60}
	got := ApplyDurationPenalty(raw, 0.4)
	want := model.Skills{Pronunciation: 90, Fluency: 32, Grammar: 70, Vocabulary: 60}
	if !skillsNear(got, want) {
		t.Errorf("penalty must hit fluency only: %+v", got)
	}
}

func TestMinimalPairScenario(t *testing.T) {
	e, cfg := newTestEvaluator(nil, nil)
	q := model.FormattedQuestion{QID: "A1-MP-001", Type: model.TypeMinimalPair, Level: "A1", CorrectAnswer: "cat"}

	res := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseText, ResponseData: " cat "}, q)
	if res.IsMockData || res.Method != model.MethodExactMatch {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.RawScores != model.Uniform(100) {
		t.Errorf("raw = %+v, want 100 on all skills", res.RawScores)
	}
	lw := cfg.LevelWeights["A1"]
	want := model.Skills{Pronunciation: 100 * 1.0 * lw.Pronunciation}
	if !skillsNear(res.Scores, want) {
		t.Errorf("scores = %+v, want %+v", res.Scores, want)
	}
	if !near(res.OverallWeighted, 100*lw.Pronunciation) {
		t.Errorf("overall = %f", res.OverallWeighted)
	}

	wrong := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseText, ResponseData: "cut"}, q)
	if wrong.OverallWeighted != 0 || wrong.Match.IsCorrect {
		t.Errorf("wrong answer must score 0: %+v", wrong)
	}
}

func TestDictationScenario(t *testing.T) {
	e, _ := newTestEvaluator(nil, nil)
	q := model.FormattedQuestion{QID: "A2-DI-001", Type: model.TypeDictation, Level: "A2", ExpectedText: "The cat sat on the mat"}

	res := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseText, ResponseData: "The cat sat on a mat"}, q)
	if res.Method != model.MethodWordAccuracy || res.Dictation == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Dictation.CorrectWords != 5 || res.Dictation.TotalWords != 6 {
		t.Errorf("expected 5/6 words, got %d/%d", res.Dictation.CorrectWords, res.Dictation.TotalWords)
	}
	want := model.Skills{Vocabulary: 500.0 / 6}
	if !skillsNear(res.RawScores, want) {
		t.Errorf("raw = %+v, want %+v", res.RawScores, want)
	}

	empty := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseText}, q)
	if empty.IsMockData || empty.Dictation.WordAccuracy != 0 {
		t.Errorf("empty input must score 0%%, got %+v", empty)
	}

	noText := e.Evaluate(context.Background(), model.Submission{ResponseData: "x"}, model.FormattedQuestion{Type: model.TypeDictation, Level: "A2"})
	if !noText.IsMockData {
		t.Errorf("missing expected text must fall back to mock")
	}
}

func TestWordAccuracy(t *testing.T) {
	tests := []struct {
		expected, user string
		correct        int
	}{
		{"Hello, world!", "hello world", 2},
		{"Hello world", "world hello", 0},
		{"one two three", "one two", 2},
		{"one two", "one two three four", 2},
		{"Café au lait.", "café au lait", 3},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := WordAccuracy(tt.expected, tt.user); got.CorrectWords != tt.correct {
				t.Errorf("correct = %d, want %d", got.CorrectWords, tt.correct)
			}
		})
	}
}

func TestMCQ(t *testing.T) {
	e, _ := newTestEvaluator(nil, nil)
	q := model.FormattedQuestion{Type: model.TypeListenMCQ, Level: "B1", CorrectAnswer: "on Monday", Options: []string{"on Monday", "on Friday"}}
	res := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseText, ResponseData: "on Monday"}, q)
	if !res.Match.IsCorrect || res.RawScores != model.Uniform(100) {
		t.Errorf("unexpected result %+v", res)
	}
	// A text answer to a question without a correct answer never matches.
	res = e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseText}, model.FormattedQuestion{Type: model.TypeOpenResponse, Level: "A1"})
	if res.Match == nil || res.Match.IsCorrect {
		t.Errorf("empty correct answer must not match: %+v", res)
	}
}

func unscriptedDoc(relevance string) assess.Document {
	return assess.Document{
		"pronunciation": map[string]any{"overall_score": 80.0, "words": []any{}},
		"fluency":       map[string]any{"overall_score": 70.0},
		"grammar":       map[string]any{"overall_score": 60.0},
		"vocabulary":    map[string]any{"overall_score": 50.0},
		"metadata":      map[string]any{"content_relevance": relevance, "predicted_text": "I like my city"},
	}
}

func TestOpenResponseDurationScenario(t *testing.T) {
	p := &fakeProvider{doc: unscriptedDoc("RELEVANT")}
	e, cfg := newTestEvaluator(p, fakeAudio{seconds: 20})
	q := model.FormattedQuestion{
		QID:    "B2-OR-001",
		Type:   model.TypeOpenResponse,
		Level:  "B2",
		Prompt: "Describe your city.",
		Timing: model.Timing{ResponseTimeSec: 120},
	}

	res := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseAudio, AudioPath: "r.webm"}, q)
	if res.IsMockData {
		t.Fatalf("unexpected mock: %s", res.Note)
	}
	if res.Duration == nil || res.Duration.Multiplier != 0.4 {
		t.Fatalf("expected 0.4 duration multiplier, got %+v", res.Duration)
	}
	want := model.Skills{Pronunciation: 80, Fluency: 70 * 0.4, Grammar: 60, Vocabulary: 50}
	if !skillsNear(res.AdjustedScores, want) {
		t.Errorf("adjusted = %+v, want %+v", res.AdjustedScores, want)
	}
	_, profile := cfg.Profile(model.TypeOpenResponse)
	final, _ := Combine(want, profile, cfg.LevelWeights["B2"])
	if !skillsNear(res.Scores, final) {
		t.Errorf("scores = %+v, want %+v", res.Scores, final)
	}
	if len(p.reqs) != 1 || p.reqs[0].Mode != assess.ModeUnscripted || p.reqs[0].Question != "Describe your city." {
		t.Errorf("unexpected provider request %+v", p.reqs)
	}
	if p.reqs[0].AudioPath != "/audio/r.webm" {
		t.Errorf("expected resolved audio path, got %q", p.reqs[0].AudioPath)
	}
	if res.Transcription != "I like my city" {
		t.Errorf("unexpected transcription %q", res.Transcription)
	}
}

func TestDurationPenaltyScope(t *testing.T) {
	tests := []struct {
		name      string
		qt        model.QuestionType
		relevance string
		penalised bool
	}{
		{"image description", model.TypeImageDescription, "RELEVANT", true},
		{"listen answer is exempt", model.TypeListenAnswer, "RELEVANT", false},
		{"not relevant skips penalty", model.TypeOpenResponse, "NOT_RELEVANT", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEvaluator(&fakeProvider{doc: unscriptedDoc(tt.relevance)}, fakeAudio{seconds: 1})
			q := model.FormattedQuestion{Type: tt.qt, Level: "B1", Timing: model.Timing{ResponseTimeSec: 80}}
			res := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.wav"}, q)
			if (res.Duration != nil) != tt.penalised {
				t.Errorf("penalty applied = %v, want %v", res.Duration != nil, tt.penalised)
			}
			if tt.relevance == "NOT_RELEVANT" && res.AdjustedScores != (model.Skills{}) {
				t.Errorf("not relevant must zero all skills: %+v", res.AdjustedScores)
			}
		})
	}
}

func TestDurationFallback(t *testing.T) {
	e, _ := newTestEvaluator(&fakeProvider{doc: unscriptedDoc("RELEVANT")}, fakeAudio{err: errors.New("broken")})
	q := model.FormattedQuestion{Type: model.TypeOpenResponse, Level: "A1", Timing: model.Timing{ResponseTimeSec: 120}}
	res := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.mp3"}, q)
	// 30s of 120s is 25%.
	if res.Duration == nil || res.Duration.Seconds != 30 || res.Duration.Multiplier != 0.7 || !res.Duration.EstimatedLength {
		t.Errorf("unexpected duration detail %+v", res.Duration)
	}
}

func TestRepeatSentence(t *testing.T) {
	p := &fakeProvider{doc: assess.Document{"overall_score": 90.0, "words": []any{}}}
	e, _ := newTestEvaluator(p, fakeAudio{seconds: 5})
	q := model.FormattedQuestion{Type: model.TypeRepeatSentence, Level: "A1", ExpectedText: "Hello there"}
	res := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.wav"}, q)
	if res.Method != model.MethodScripted || res.IsMockData {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Duration != nil {
		t.Error("repeat_sentence must not get a duration penalty")
	}
	if p.reqs[0].ExpectedText != "Hello there" || p.reqs[0].Accent != "us" {
		t.Errorf("unexpected request %+v", p.reqs[0])
	}
}

func TestMockFallbacks(t *testing.T) {
	timeout := &fakeProvider{err: context.DeadlineExceeded}
	tests := []struct {
		name     string
		provider assess.Provider
		audio    AudioStore
		q        model.FormattedQuestion
		sub      model.Submission
	}{
		{"provider timeout", timeout, fakeAudio{}, model.FormattedQuestion{Type: model.TypeOpenResponse, Level: "A1"},
			model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.wav"}},
		{"no provider", nil, fakeAudio{}, model.FormattedQuestion{Type: model.TypeOpenResponse, Level: "A1"},
			model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.wav"}},
		{"missing audio", &fakeProvider{}, fakeAudio{missing: true}, model.FormattedQuestion{Type: model.TypeOpenResponse, Level: "A1"},
			model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.wav"}},
		{"unparsable result", &fakeProvider{doc: assess.Document{"foo": 1.0}}, fakeAudio{}, model.FormattedQuestion{Type: model.TypeOpenResponse, Level: "A1"},
			model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.wav"}},
		{"unsupported audio type", &fakeProvider{}, fakeAudio{}, model.FormattedQuestion{Type: model.TypeSequence, Level: "A1"},
			model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.wav"}},
		{"repeat without text", &fakeProvider{}, fakeAudio{}, model.FormattedQuestion{Type: model.TypeRepeatSentence, Level: "A1"},
			model.Submission{ResponseType: model.ResponseAudio, AudioPath: "a.wav"}},
		{"unknown response type", nil, nil, model.FormattedQuestion{Type: model.TypeOpenResponse, Level: "A1"},
			model.Submission{ResponseType: "video"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, cfg := newTestEvaluator(tt.provider, tt.audio)
			res := e.Evaluate(context.Background(), tt.sub, tt.q)
			if !res.IsMockData || res.Method != model.MethodMock || res.Note == "" {
				t.Fatalf("expected flagged mock, got %+v", res)
			}
			for _, sk := range model.AllSkills {
				if v := res.RawScores.Get(sk); v < 50 || v > 100 {
					t.Errorf("%s raw %f outside plausible range", sk, v)
				}
			}
			_, profile := cfg.Profile(tt.q.Type)
			final, overall := Combine(res.RawScores, profile, cfg.LevelWeight(tt.q.Level))
			if !skillsNear(res.Scores, final) || !near(res.OverallWeighted, overall) {
				t.Errorf("mock scores must go through the weight combination")
			}
		})
	}
}

func TestAudioOutsideRootNeverAssessed(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "uploads")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(secret, []byte("do not send"), 0o644); err != nil {
		t.Fatal(err)
	}
	q := model.FormattedQuestion{Type: model.TypeOpenResponse, Level: "A1"}

	for _, ref := range []string{secret, "../secret.txt", "x/../../secret.txt"} {
		t.Run(ref, func(t *testing.T) {
			p := &fakeProvider{}
			e, _ := newTestEvaluator(p, audio.Local{Root: root})
			res := e.Evaluate(context.Background(), model.Submission{ResponseType: model.ResponseAudio, AudioPath: ref}, q)
			if !res.IsMockData {
				t.Errorf("expected mock fallback for %q, got %+v", ref, res)
			}
			if len(p.reqs) != 0 {
				t.Errorf("provider received %+v", p.reqs)
			}
		})
	}
}
