package assess

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pavelanni/placement/internal/model"
)

// Shape identifies which result layout a document used.
type Shape string

const (
	// ShapeScripted documents carry top-level "words" and "overall_score".
	ShapeScripted Shape = "scripted"
	// ShapeUnscripted documents nest words under "pronunciation" and score
	// every skill separately.
	ShapeUnscripted Shape = "unscripted"
)

// Offsets subtracted from the pronunciation score to approximate the other
// skills when a scripted result does not score them. This is an estimate,
// not a measurement.
const (
	derivedFluencyOffset    = 5
	derivedGrammarOffset    = 10
	derivedVocabularyOffset = 8
)

// pauseThreshold is the silence between words, in seconds, that is rendered
// as a pause marker in rebuilt transcriptions.
const pauseThreshold = 0.3

// ErrUnrecognizedShape is returned for documents matching neither layout.
var ErrUnrecognizedShape = errors.New("assess: unrecognized result shape")

// Result is the typed reading of a provider document.
type Result struct {
	Shape         Shape
	Skills        model.Skills
	Derived       []model.Skill
	Transcription string
	Words         []model.WordDetail
	Relevance     model.Relevance
}

// Parse reads a provider document. It tries the unscripted layout first,
// then the scripted one, and fails closed on anything else.
func Parse(doc Document) (*Result, error) {
	if doc == nil {
		return nil, ErrUnrecognizedShape
	}
	var (
		res *Result
		err error
	)
	if pron, ok := doc["pronunciation"].(map[string]any); ok {
		if _, ok := pron["words"].([]any); ok {
			res, err = parseUnscripted(doc, pron)
		}
	}
	if res == nil && err == nil {
		if _, ok := doc["words"].([]any); ok {
			res, err = parseScripted(doc)
		}
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrUnrecognizedShape
	}
	res.Relevance = Relevance(doc)
	return res, nil
}

func parseUnscripted(doc, pron map[string]any) (*Result, error) {
	words, err := parseWords(pron["words"].([]any))
	if err != nil {
		return nil, err
	}
	res := &Result{Shape: ShapeUnscripted, Words: words}
	res.Skills = model.Skills{
		Pronunciation: clamp(skillScore(doc, model.SkillPronunciation)),
		Fluency:       clamp(skillScore(doc, model.SkillFluency)),
		Grammar:       clamp(skillScore(doc, model.SkillGrammar)),
		Vocabulary:    clamp(skillScore(doc, model.SkillVocabulary)),
	}
	if md, ok := doc["metadata"].(map[string]any); ok {
		res.Transcription, _ = md["predicted_text"].(string)
	}
	return res, nil
}

func parseScripted(doc map[string]any) (*Result, error) {
	rawWords := doc["words"].([]any)
	words, err := parseWords(rawWords)
	if err != nil {
		return nil, err
	}
	res := &Result{Shape: ShapeScripted, Words: words, Transcription: rebuildTranscription(rawWords)}

	pron, ok := number(doc["overall_score"])
	if !ok {
		pron, ok = nestedScore(doc, model.SkillPronunciation)
	}
	if !ok {
		return nil, fmt.Errorf("%w: scripted result without a score", ErrUnrecognizedShape)
	}
	pron = clamp(pron)
	res.Skills.Pronunciation = pron

	derive := func(sk model.Skill, offset float64) float64 {
		if v, ok := nestedScore(doc, sk); ok {
			return clamp(v)
		}
		res.Derived = append(res.Derived, sk)
		return math.Max(0, pron-offset)
	}
	res.Skills.Fluency = derive(model.SkillFluency, derivedFluencyOffset)
	res.Skills.Grammar = derive(model.SkillGrammar, derivedGrammarOffset)
	res.Skills.Vocabulary = derive(model.SkillVocabulary, derivedVocabularyOffset)
	return res, nil
}

// skillScore reads doc[skill].overall_score, or 0.
func skillScore(doc map[string]any, sk model.Skill) float64 {
	v, _ := nestedScore(doc, sk)
	return v
}

func nestedScore(doc map[string]any, sk model.Skill) (float64, bool) {
	m, ok := doc[string(sk)].(map[string]any)
	if !ok {
		return 0, false
	}
	return number(m["overall_score"])
}

func parseWords(raw []any) ([]model.WordDetail, error) {
	words := make([]model.WordDetail, 0, len(raw))
	for i, item := range raw {
		w, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: word %d is not an object", ErrUnrecognizedShape, i)
		}
		wd := model.WordDetail{Word: wordText(w, i)}
		if s, ok := number(w["word_score"]); ok {
			wd.Score = s
		}
		wd.StartTime = optNumber(w["start_time"])
		wd.EndTime = optNumber(w["end_time"])
		if phonemes, ok := w["phonemes"].([]any); ok {
			for _, p := range phonemes {
				pm, ok := p.(map[string]any)
				if !ok {
					continue
				}
				wd.Phonemes = append(wd.Phonemes, parsePhoneme(pm))
			}
		}
		words = append(words, wd)
	}
	return words, nil
}

func parsePhoneme(p map[string]any) model.PhonemeDetail {
	pd := model.PhonemeDetail{IPA: "?"}
	if s, ok := p["ipa_label"].(string); ok && s != "" {
		pd.IPA = s
	} else if s, ok := p["ipa"].(string); ok && s != "" {
		pd.IPA = s
	}
	if s, ok := number(p["phoneme_score"]); ok {
		pd.Score = math.Round(s)
	} else if s, ok := number(p["score"]); ok {
		pd.Score = math.Round(s)
	}
	pd.ExpectedIPA, _ = p["expected_ipa"].(string)
	pd.ActualIPA, _ = p["actual_ipa"].(string)
	pd.Confidence = optNumber(p["confidence"])
	pd.StartTime = optNumber(p["start_time"])
	pd.EndTime = optNumber(p["end_time"])
	return pd
}

func wordText(w map[string]any, i int) string {
	if s, ok := w["word_text"].(string); ok {
		return s
	}
	if s, ok := w["text"].(string); ok {
		return s
	}
	return fmt.Sprintf("word_%d", i)
}

// rebuildTranscription joins the words and marks gaps longer than
// pauseThreshold as "[pause N.Ns]".
func rebuildTranscription(raw []any) string {
	var parts []string
	var prevEnd float64
	for i, item := range raw {
		w, ok := item.(map[string]any)
		if !ok {
			continue
		}
		start, _ := number(w["start_time"])
		if i > 0 && start-prevEnd > pauseThreshold {
			parts = append(parts, fmt.Sprintf("[pause %.1fs]", start-prevEnd))
		}
		parts = append(parts, wordText(w, i))
		if end, ok := number(w["end_time"]); ok {
			prevEnd = end
		} else {
			prevEnd = start + 0.5
		}
	}
	return strings.Join(parts, " ")
}

// relevancePaths lists where providers have been seen to put the content
// relevance verdict, most specific first.
var relevancePaths = [][]string{
	{"metadata", "content_relevance"},
	{"content_relevance"},
	{"relevance"},
	{"metadata", "relevance"},
	{"overall", "content_relevance"},
	{"overall", "relevance"},
}

// Relevance extracts the content-relevance verdict of a document. Missing
// or unreadable verdicts yield RelevanceUnknown.
func Relevance(doc Document) model.Relevance {
	for _, path := range relevancePaths {
		v, ok := lookup(doc, path)
		if !ok || v == nil {
			continue
		}
		if r := classify(v); r != model.RelevanceUnknown {
			return r
		}
	}
	return model.RelevanceUnknown
}

func classify(v any) model.Relevance {
	if n, ok := number(v); ok {
		switch {
		case n >= 80:
			return model.RelevanceRelevant
		case n >= 50:
			return model.RelevancePartial
		default:
			return model.RelevanceNot
		}
	}
	switch t := v.(type) {
	case string:
		return NormalizeRelevance(t)
	case map[string]any:
		for _, k := range []string{"class", "label", "relevance", "score", "value"} {
			if inner, ok := t[k]; ok && inner != nil {
				if r := classify(inner); r != model.RelevanceUnknown {
					return r
				}
			}
		}
	}
	return model.RelevanceUnknown
}

// NormalizeRelevance maps a free-form label onto a verdict. Labels
// mentioning "not" or "irrelevant" are not relevant, labels mentioning
// "partial" are partially relevant, anything else is relevant.
func NormalizeRelevance(label string) model.Relevance {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "":
		return model.RelevanceUnknown
	case strings.Contains(l, "not") || strings.Contains(l, "irrelevant"):
		return model.RelevanceNot
	case strings.Contains(l, "partial"):
		return model.RelevancePartial
	default:
		return model.RelevanceRelevant
	}
}

func lookup(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func optNumber(v any) *float64 {
	if n, ok := number(v); ok {
		return &n
	}
	return nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
