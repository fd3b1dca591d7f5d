package selector

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/pavelanni/placement/internal/config"
	"github.com/pavelanni/placement/internal/corpus"
	"github.com/pavelanni/placement/internal/model"
)

func testCorpus() *corpus.Corpus {
	var qs []model.Question
	add := func(lvl model.Level, t model.QuestionType, code string, n int) {
		for i := 1; i <= n; i++ {
			qs = append(qs, model.Question{
				ID:    fmt.Sprintf("%s-%s-%03d", lvl, code, i),
				Type:  t,
				Level: lvl,
				Metadata: model.Metadata{
					Options:       []string{"one", "two", "three", "four"},
					CorrectAnswer: "three",
					ExpectedText:  "some text",
					ImageRef:      "images/pic.png",
				},
			})
		}
	}
	add("A1", model.TypeRepeatSentence, "RS", 5)
	add("A1", model.TypeOpenResponse, "OR", 1)
	add("A1", model.TypeMinimalPair, "MP", 1)
	add("B1", model.TypeListenMCQ, "LM", 3)
	return corpus.New(qs)
}

func seeded(seed uint64) rand.Source { return rand.NewPCG(seed, seed+1) }

func TestDrawBounds(t *testing.T) {
	cfg := config.Default()
	s := New(cfg, testCorpus(), seeded(1))

	drawn, err := s.Draw("A1")
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	perType := map[model.QuestionType]int{}
	seen := map[string]bool{}
	for _, q := range drawn {
		perType[q.Type]++
		if seen[q.QID] {
			t.Errorf("question %s drawn twice", q.QID)
		}
		seen[q.QID] = true
		if q.Level != "A1" {
			t.Errorf("expected level A1, got %s", q.Level)
		}
	}
	// Configured: repeat_sentence 1, open_response 1, minimal_pair 2 (only 1 available).
	want := map[model.QuestionType]int{
		model.TypeRepeatSentence: 1,
		model.TypeOpenResponse:   1,
		model.TypeMinimalPair:    1,
	}
	for qt, n := range want {
		if perType[qt] != n {
			t.Errorf("%s: drew %d, want %d", qt, perType[qt], n)
		}
	}
	if len(drawn) != 3 {
		t.Errorf("expected 3 questions, got %d", len(drawn))
	}
}

func TestDrawSkipsMissingTypes(t *testing.T) {
	cfg := config.Default()
	c := corpus.New([]model.Question{{ID: "A1-OR-001", Type: model.TypeOpenResponse, Level: "A1"}})
	drawn, err := New(cfg, c, seeded(2)).Draw("A1")
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(drawn) != 1 || drawn[0].QID != "A1-OR-001" {
		t.Errorf("unexpected draw %+v", drawn)
	}
}

func TestDrawEmpty(t *testing.T) {
	cfg := config.Default()
	_, err := New(cfg, testCorpus(), seeded(3)).Draw("C2")
	if !errors.Is(err, ErrNoQuestionsAvailable) {
		t.Errorf("expected ErrNoQuestionsAvailable, got %v", err)
	}
}

func TestDrawReproducible(t *testing.T) {
	cfg := config.Default()
	ids := func(seed uint64) []string {
		s := New(cfg, testCorpus(), seeded(seed))
		var out []string
		for range 3 {
			drawn, err := s.Draw("A1")
			if err != nil {
				t.Fatalf("Draw: %v", err)
			}
			for _, q := range drawn {
				out = append(out, q.QID)
			}
		}
		return out
	}
	a, b := ids(42), ids(42)
	if !slices.Equal(a, b) {
		t.Errorf("same seed gave different draws:\n%v\n%v", a, b)
	}
}

func TestFormat(t *testing.T) {
	cfg := config.Default()
	s := New(cfg, testCorpus(), seeded(4))
	md := model.Metadata{
		Options:          []string{"one", "two", "three", "four"},
		CorrectAnswer:    "three",
		ExpectedText:     "expected",
		AudioRef:         "audio/x.mp3",
		ImageRef:         "images/park.png",
		ImageDescription: "a park",
	}

	tests := []struct {
		qt    model.QuestionType
		check func(t *testing.T, fq model.FormattedQuestion)
	}{
		{model.TypeMinimalPair, func(t *testing.T, fq model.FormattedQuestion) {
			if !slices.Equal(fq.Options, md.Options) || fq.CorrectAnswer != "three" || fq.AudioRef == "" {
				t.Errorf("unexpected minimal pair %+v", fq)
			}
		}},
		{model.TypeRepeatSentence, func(t *testing.T, fq model.FormattedQuestion) {
			if fq.ExpectedText != "expected" || fq.Options != nil {
				t.Errorf("unexpected repeat sentence %+v", fq)
			}
		}},
		{model.TypeImageDescription, func(t *testing.T, fq model.FormattedQuestion) {
			if fq.ImageRef != "park.png" || fq.ImageDescription != "a park" {
				t.Errorf("unexpected image description %+v", fq)
			}
		}},
		{model.TypeDictation, func(t *testing.T, fq model.FormattedQuestion) {
			if fq.AudioRef != "audio/x.mp3" || fq.ExpectedText != "expected" {
				t.Errorf("unexpected dictation %+v", fq)
			}
		}},
		{model.TypeListenMCQ, func(t *testing.T, fq model.FormattedQuestion) {
			sorted := slices.Clone(fq.Options)
			slices.Sort(sorted)
			want := slices.Clone(md.Options)
			slices.Sort(want)
			if !slices.Equal(sorted, want) || fq.CorrectAnswer != "three" {
				t.Errorf("options must be a permutation carrying the answer value: %+v", fq)
			}
		}},
		{model.QuestionType("mystery"), func(t *testing.T, fq model.FormattedQuestion) {
			if fq.Options != nil || fq.ExpectedText != "" {
				t.Errorf("unknown type must carry base fields only: %+v", fq)
			}
			if fq.Timing.ResponseTimeSec != 30 || fq.Timing.ThinkTimeSec != 5 {
				t.Errorf("expected fallback timing, got %+v", fq.Timing)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.qt), func(t *testing.T) {
			s.mu.Lock()
			fq := s.format(model.Question{ID: "A1-X-001", Type: tt.qt, Level: "A1", Metadata: md}, "A1")
			s.mu.Unlock()
			tt.check(t, fq)
		})
	}

	// Shuffling must not touch the corpus entry.
	if md.Options[0] != "one" || md.Options[3] != "four" {
		t.Errorf("source options mutated: %v", md.Options)
	}
}

func TestServe(t *testing.T) {
	sess := &model.ExamSession{
		CurrentLevel:   "A1",
		Status:         model.StatusInProgress,
		LevelQuestions: []model.FormattedQuestion{{QID: "q1"}, {QID: "q2"}},
	}
	q := Serve(sess)
	if q == nil || q.QID != "q1" || q.QuestionNumber != 1 || q.TotalInLevel != 2 || q.CurrentLevel != "A1" {
		t.Fatalf("unexpected served question %+v", q)
	}
	if sess.LevelQuestions[0].QuestionNumber != 0 {
		t.Error("Serve must not modify the stored question")
	}
	sess.CurrentQuestionIndex = 2
	if Serve(sess) != nil {
		t.Error("expected nil past the end")
	}
	sess.CurrentQuestionIndex = 1
	sess.ExamComplete = true
	if Serve(sess) != nil {
		t.Error("expected nil for a completed exam")
	}
}
