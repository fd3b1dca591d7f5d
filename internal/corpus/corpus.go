// Package corpus indexes the question bank by level and type.
package corpus

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/placement/internal/model"
)

// Corpus is a read-only question index. It is safe for concurrent use once built.
type Corpus struct {
	byLevel map[model.Level]map[model.QuestionType][]model.Question
	size    int
}

// New indexes the given questions. Questions without a level are ignored.
func New(questions []model.Question) *Corpus {
	c := &Corpus{byLevel: make(map[model.Level]map[model.QuestionType][]model.Question)}
	for _, q := range questions {
		if q.Level == "" || q.Type == "" {
			continue
		}
		types, ok := c.byLevel[q.Level]
		if !ok {
			types = make(map[model.QuestionType][]model.Question)
			c.byLevel[q.Level] = types
		}
		types[q.Type] = append(types[q.Type], q)
		c.size++
	}
	// Keep a stable order so seeded draws are reproducible.
	for _, types := range c.byLevel {
		for _, qs := range types {
			sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
		}
	}
	return c
}

// Fallback returns the built-in corpus used when no question bank is available.
func Fallback() *Corpus {
	return New([]model.Question{
		{
			ID:     "A1-OR-001",
			Type:   model.TypeOpenResponse,
			Level:  "A1",
			Prompt: "Please introduce yourself.",
			Metadata: model.Metadata{Context: &model.QuestionContext{
				Question:           "Please introduce yourself.",
				ContextDescription: "The speaker introduces themselves: name, origin, work or studies.",
			}},
		},
		{
			ID:       "A1-RS-001",
			Type:     model.TypeRepeatSentence,
			Level:    "A1",
			Prompt:   "Repeat: Hello, my name is John.",
			Metadata: model.Metadata{ExpectedText: "Hello, my name is John."},
		},
	})
}

// Questions returns the questions of one type at one level. The slice must
// not be modified.
func (c *Corpus) Questions(lvl model.Level, t model.QuestionType) []model.Question {
	return c.byLevel[lvl][t]
}

// Level returns every question of a level grouped by type.
func (c *Corpus) Level(lvl model.Level) map[model.QuestionType][]model.Question {
	return c.byLevel[lvl]
}

// Len returns the number of indexed questions.
func (c *Corpus) Len() int {
	return c.size
}

// LevelFromID derives the level from an id such as "b1-rs-004".
func LevelFromID(id string) model.Level {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok || prefix == "" {
		return ""
	}
	return model.Level(strings.ToUpper(prefix))
}

// rawQuestion mirrors the question file format, which spells some metadata
// keys in two ways.
type rawQuestion struct {
	ID       string             `json:"id"`
	Type     model.QuestionType `json:"type"`
	Prompt   string             `json:"prompt"`
	Metadata struct {
		model.Metadata
		ExpectedTextAlt string `json:"expected_text"`
	} `json:"metadata"`
}

// ParseQuestions decodes a question file: a JSON array of
// {id, type, prompt, metadata}.
func ParseQuestions(data []byte) ([]model.Question, error) {
	var raw []rawQuestion
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	questions := make([]model.Question, 0, len(raw))
	for i, r := range raw {
		if r.ID == "" || r.Type == "" {
			return nil, fmt.Errorf("question %d: missing id or type", i)
		}
		md := r.Metadata.Metadata
		if md.ExpectedText == "" {
			md.ExpectedText = r.Metadata.ExpectedTextAlt
		}
		questions = append(questions, model.Question{
			ID:       r.ID,
			Type:     r.Type,
			Level:    LevelFromID(r.ID),
			Prompt:   r.Prompt,
			Metadata: md,
		})
	}
	return questions, nil
}
