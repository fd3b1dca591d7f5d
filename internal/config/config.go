// Package config holds the typed exam configuration: level order, per-level
// question mix, scoring profiles, level weights and question timing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/placement/internal/model"
)

// FallbackProfile is used for question types without a profile mapping.
const FallbackProfile = "unscripted_mixed"

// weightTolerance bounds how far a level-weight sum may drift from 1.0
// before a warning is logged.
const weightTolerance = 0.001

// ErrNoLevels is returned when a document has no level with a question mix.
var ErrNoLevels = errors.New("config: no usable levels")

// LevelPlan is the question mix of one level.
type LevelPlan struct {
	TypeCounts map[model.QuestionType]int `yaml:"type_counts" json:"type_counts"`
	// Timing overrides the global timing table for this level only.
	Timing map[model.QuestionType]model.Timing `yaml:"question_timing,omitempty" json:"question_timing,omitempty"`
}

// Levels is the progression section of the document.
type Levels struct {
	Order                []model.Level             `yaml:"order" json:"order"`
	GateThreshold        float64                   `yaml:"gate_threshold" json:"gate_threshold"`
	CertificateThreshold float64                   `yaml:"certificate_threshold" json:"certificate_threshold"`
	PerLevel             map[model.Level]LevelPlan `yaml:"per_level" json:"per_level"`
}

// Exam is the full exam configuration. It is built once at startup and must
// not be mutated afterwards.
type Exam struct {
	Accent          string                              `yaml:"accent" json:"accent"`
	Levels          Levels                              `yaml:"exam" json:"exam"`
	TypeToProfile   map[model.QuestionType]string       `yaml:"type_to_profile" json:"type_to_profile"`
	ScoringProfiles map[string]model.Skills             `yaml:"scoring_profiles" json:"scoring_profiles"`
	LevelWeights    map[model.Level]model.Skills        `yaml:"level_scoring_weights" json:"level_scoring_weights"`
	QuestionTiming  map[model.QuestionType]model.Timing `yaml:"question_timing" json:"question_timing"`

	// Source describes where the configuration came from.
	Source string `yaml:"-" json:"source"`

	examMax *model.Skills
}

// TypeCount is one entry of a level's question mix.
type TypeCount struct {
	Type  model.QuestionType
	Count int
}

// Parse decodes a YAML or JSON document and fills unset sections from the
// built-in defaults.
func Parse(data []byte) (*Exam, error) {
	var c Exam
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	c.fillDefaults()
	if len(c.Levels.Order) == 0 {
		return nil, ErrNoLevels
	}
	c.seal()
	return &c, nil
}

// LoadOrDefault loads the configuration at path. An empty or unreadable path
// yields the built-in default; a document that fails to parse or has no
// usable levels yields the minimal single-level configuration.
func LoadOrDefault(path string) *Exam {
	if path == "" {
		c := Default()
		c.Validate()
		return c
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("exam config not readable, using defaults", "path", path, "error", err)
		c := Default()
		c.Validate()
		return c
	}
	c, err := Parse(data)
	if err != nil {
		slog.Warn("exam config invalid, using minimal configuration", "path", path, "error", err)
		c = Minimal()
		c.Validate()
		return c
	}
	c.Source = path
	c.Validate()
	slog.Info("exam config loaded", "path", path, "levels", len(c.Levels.Order))
	return c
}

// Validate checks the level-weight sums and logs every violation. It never
// fails: the returned messages are informational.
func (c *Exam) Validate() []string {
	var warnings []string
	for _, lvl := range c.Levels.Order {
		w, ok := c.LevelWeights[lvl]
		if !ok {
			continue
		}
		if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
			msg := fmt.Sprintf("level %s weights sum to %.4f, expected 1.0", lvl, sum)
			slog.Warn("level weights do not sum to 1", "level", lvl, "sum", sum)
			warnings = append(warnings, msg)
		}
	}
	for t, name := range c.TypeToProfile {
		if _, ok := c.ScoringProfiles[name]; !ok {
			slog.Warn("question type maps to unknown profile", "type", t, "profile", name)
			warnings = append(warnings, fmt.Sprintf("type %s maps to unknown profile %q", t, name))
		}
	}
	return warnings
}

func (c *Exam) fillDefaults() {
	def := Default()
	if c.Accent == "" {
		c.Accent = def.Accent
	}
	if c.Levels.GateThreshold == 0 {
		c.Levels.GateThreshold = def.Levels.GateThreshold
	}
	if c.Levels.CertificateThreshold == 0 {
		c.Levels.CertificateThreshold = def.Levels.CertificateThreshold
	}
	if c.TypeToProfile == nil {
		c.TypeToProfile = def.TypeToProfile
	}
	if c.ScoringProfiles == nil {
		c.ScoringProfiles = def.ScoringProfiles
	}
	if c.QuestionTiming == nil {
		c.QuestionTiming = def.QuestionTiming
	}
	if c.LevelWeights == nil {
		c.LevelWeights = make(map[model.Level]model.Skills)
	}
	if len(c.Levels.Order) == 0 {
		for lvl := range c.Levels.PerLevel {
			c.Levels.Order = append(c.Levels.Order, lvl)
		}
		slices.Sort(c.Levels.Order)
	}

	// Levels without any question cannot be drawn; drop them from the order.
	var order []model.Level
	for _, lvl := range c.Levels.Order {
		if c.levelQuestionCount(lvl) == 0 {
			slog.Warn("level has no configured questions, skipping", "level", lvl)
			continue
		}
		if slices.Contains(order, lvl) {
			continue
		}
		order = append(order, lvl)
		if _, ok := c.LevelWeights[lvl]; !ok {
			if w, ok := def.LevelWeights[lvl]; ok {
				c.LevelWeights[lvl] = w
			} else {
				c.LevelWeights[lvl] = model.Uniform(0.25)
			}
		}
	}
	c.Levels.Order = order
}

func (c *Exam) levelQuestionCount(lvl model.Level) int {
	n := 0
	for _, cnt := range c.Levels.PerLevel[lvl].TypeCounts {
		if cnt > 0 {
			n += cnt
		}
	}
	return n
}

// FirstLevel returns the entry level of the exam.
func (c *Exam) FirstLevel() model.Level {
	return c.Levels.Order[0]
}

// NextLevel returns the level after lvl, if any.
func (c *Exam) NextLevel(lvl model.Level) (model.Level, bool) {
	i := c.Rank(lvl)
	if i < 0 || i+1 >= len(c.Levels.Order) {
		return "", false
	}
	return c.Levels.Order[i+1], true
}

// Rank returns the position of lvl in the level order, or -1.
func (c *Exam) Rank(lvl model.Level) int {
	return slices.Index(c.Levels.Order, lvl)
}

// HasLevel reports whether lvl is part of the exam.
func (c *Exam) HasLevel(lvl model.Level) bool {
	return c.Rank(lvl) >= 0
}

// TypeCounts returns the positive question counts of a level sorted by type,
// so that seeded draws are reproducible.
func (c *Exam) TypeCounts(lvl model.Level) []TypeCount {
	var out []TypeCount
	for t, n := range c.Levels.PerLevel[lvl].TypeCounts {
		if n > 0 {
			out = append(out, TypeCount{Type: t, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Profile returns the profile name and weights for a question type.
func (c *Exam) Profile(t model.QuestionType) (string, model.Skills) {
	name, ok := c.TypeToProfile[t]
	if !ok {
		name = FallbackProfile
	}
	if w, ok := c.ScoringProfiles[name]; ok {
		return name, w
	}
	if w, ok := c.ScoringProfiles[FallbackProfile]; ok {
		return FallbackProfile, w
	}
	return FallbackProfile, model.Uniform(0.25)
}

// LevelWeight returns the skill weights of a level.
func (c *Exam) LevelWeight(lvl model.Level) model.Skills {
	if w, ok := c.LevelWeights[lvl]; ok {
		return w
	}
	return model.Uniform(0.25)
}

// Timing resolves the timing of a question type at a level: level override,
// then the global table, then the built-in table, then the generic fallback.
func (c *Exam) Timing(lvl model.Level, t model.QuestionType) model.Timing {
	if tm, ok := c.Levels.PerLevel[lvl].Timing[t]; ok {
		return tm
	}
	if tm, ok := c.QuestionTiming[t]; ok {
		return tm
	}
	if tm, ok := builtinTiming[t]; ok {
		return tm
	}
	return fallbackTiming
}

// QuestionMax returns the points one question of type t can earn at lvl.
func (c *Exam) QuestionMax(lvl model.Level, t model.QuestionType) model.Skills {
	_, profile := c.Profile(t)
	return model.Uniform(100).Mul(profile).Mul(c.LevelWeight(lvl))
}

// LevelMax returns the theoretical maximum points of a level, per skill.
func (c *Exam) LevelMax(lvl model.Level) model.Skills {
	var total model.Skills
	for _, tc := range c.TypeCounts(lvl) {
		total = total.Add(c.QuestionMax(lvl, tc.Type).Scale(float64(tc.Count)))
	}
	return total
}

// seal computes the derived figures once the configuration is complete.
func (c *Exam) seal() {
	m := c.sumExamMax()
	c.examMax = &m
}

// ExamMax returns the theoretical maximum points of the whole exam, per
// skill, as computed when the configuration was built.
func (c *Exam) ExamMax() model.Skills {
	if c.examMax != nil {
		return *c.examMax
	}
	return c.sumExamMax()
}

func (c *Exam) sumExamMax() model.Skills {
	var total model.Skills
	for _, lvl := range c.Levels.Order {
		total = total.Add(c.LevelMax(lvl))
	}
	return total
}

// TotalQuestions returns the number of configured questions across all levels.
func (c *Exam) TotalQuestions() int {
	n := 0
	for _, lvl := range c.Levels.Order {
		n += c.levelQuestionCount(lvl)
	}
	return n
}
