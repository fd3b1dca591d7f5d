// Package selector draws a level's questions from the corpus and formats
// them for presentation.
package selector

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pavelanni/placement/internal/config"
	"github.com/pavelanni/placement/internal/corpus"
	"github.com/pavelanni/placement/internal/model"
)

// ErrNoQuestionsAvailable is returned when a level draw yields nothing.
var ErrNoQuestionsAvailable = errors.New("no questions available")

// Selector draws and formats questions. The random source is shared by all
// draws and guarded by a mutex, so a seeded source gives reproducible draws
// as long as calls are sequential.
type Selector struct {
	cfg    *config.Exam
	corpus atomic.Pointer[corpus.Corpus]

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Selector. A nil src seeds a PCG source from the clock.
func New(cfg *config.Exam, c *corpus.Corpus, src rand.Source) *Selector {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	s := &Selector{cfg: cfg, rng: rand.New(src)}
	s.corpus.Store(c)
	return s
}

// Corpus returns the current question index.
func (s *Selector) Corpus() *corpus.Corpus {
	return s.corpus.Load()
}

// SetCorpus replaces the question index. Questions already drawn into a
// session are unaffected.
func (s *Selector) SetCorpus(c *corpus.Corpus) {
	s.corpus.Store(c)
}

// Draw samples the configured mix of question types for a level and returns
// it in random order.
func (s *Selector) Draw(lvl model.Level) ([]model.FormattedQuestion, error) {
	c := s.corpus.Load()

	s.mu.Lock()
	defer s.mu.Unlock()

	var drawn []model.FormattedQuestion
	for _, tc := range s.cfg.TypeCounts(lvl) {
		available := c.Questions(lvl, tc.Type)
		if len(available) == 0 {
			slog.Warn("no questions of type at level, skipping", "level", lvl, "type", tc.Type, "wanted", tc.Count)
			continue
		}
		n := min(tc.Count, len(available))
		if n < tc.Count {
			slog.Warn("not enough questions of type at level", "level", lvl, "type", tc.Type, "wanted", tc.Count, "available", len(available))
		}
		for _, i := range s.rng.Perm(len(available))[:n] {
			drawn = append(drawn, s.format(available[i], lvl))
		}
	}
	if len(drawn) == 0 {
		return nil, fmt.Errorf("level %s: %w", lvl, ErrNoQuestionsAvailable)
	}
	s.rng.Shuffle(len(drawn), func(i, j int) { drawn[i], drawn[j] = drawn[j], drawn[i] })
	return drawn, nil
}

// format projects a question for presentation at a level. It must be
// called with s.mu held.
func (s *Selector) format(q model.Question, lvl model.Level) model.FormattedQuestion {
	fq := model.FormattedQuestion{
		QID:      q.ID,
		Type:     q.Type,
		Level:    lvl,
		Prompt:   q.Prompt,
		Metadata: q.Metadata,
		Timing:   s.cfg.Timing(lvl, q.Type),
	}
	md := q.Metadata
	switch q.Type {
	case model.TypeMinimalPair:
		fq.Options = md.Options
		fq.CorrectAnswer = md.CorrectAnswer
		fq.AudioRef = md.AudioRef
	case model.TypeRepeatSentence:
		fq.ExpectedText = md.ExpectedText
	case model.TypeImageDescription:
		fq.ImageRef = strings.TrimPrefix(md.ImageRef, "images/")
		fq.ImageDescription = md.ImageDescription
	case model.TypeDictation:
		fq.AudioRef = md.AudioRef
		fq.ExpectedText = md.ExpectedText
	case model.TypeListenMCQ, model.TypeBestResponseMCQ:
		opts := make([]string, len(md.Options))
		copy(opts, md.Options)
		s.rng.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
		fq.Options = opts
		fq.CorrectAnswer = md.CorrectAnswer
		fq.AudioRef = md.AudioRef
	}
	return fq
}

// Serve returns the session's current question with its position attached,
// or nil when the level is exhausted or the exam is over.
func Serve(sess *model.ExamSession) *model.FormattedQuestion {
	if sess.ExamComplete || sess.Status == model.StatusCompleted {
		return nil
	}
	idx := sess.CurrentQuestionIndex
	if idx < 0 || idx >= len(sess.LevelQuestions) {
		return nil
	}
	q := sess.LevelQuestions[idx]
	q.QuestionNumber = idx + 1
	q.TotalInLevel = len(sess.LevelQuestions)
	q.CurrentLevel = sess.CurrentLevel
	return &q
}
