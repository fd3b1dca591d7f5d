package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/placement/internal/corpus"
	"github.com/pavelanni/placement/internal/model"
	"github.com/pavelanni/placement/internal/store"
)

const maxQuestionFileBytes = 10 << 20

func (h *Handler) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.Config()
	respondOK(w, map[string]any{
		"config":                     cfg,
		"config_source":              cfg.Source,
		"exam_max_points":            cfg.ExamMax(),
		"total_configured_questions": cfg.TotalQuestions(),
		"total_questions":            h.selector.Corpus().Len(),
	})
}

type questionSample struct {
	ID              string `json:"id"`
	Prompt          string `json:"prompt"`
	HasExpectedText bool   `json:"has_expected_text"`
}

type typeSummary struct {
	Count     int              `json:"count"`
	SampleIDs []string         `json:"sample_ids"`
	Samples   []questionSample `json:"sample_questions"`
}

func (h *Handler) handleDebugQuestions(w http.ResponseWriter, r *http.Request) {
	lvl := model.Level(strings.ToUpper(chi.URLParam(r, "level")))
	byType := h.selector.Corpus().Level(lvl)
	if len(byType) == 0 {
		respondError(w, http.StatusNotFound, "level "+string(lvl)+" not found in question bank")
		return
	}

	summary := make(map[model.QuestionType]typeSummary, len(byType))
	total := 0
	for t, qs := range byType {
		s := typeSummary{Count: len(qs)}
		for i, q := range qs {
			if i < 3 {
				s.SampleIDs = append(s.SampleIDs, q.ID)
			}
			if i < 2 {
				prompt := q.Prompt
				if len(prompt) > 100 {
					prompt = prompt[:100] + "..."
				}
				s.Samples = append(s.Samples, questionSample{ID: q.ID, Prompt: prompt, HasExpectedText: q.Metadata.ExpectedText != ""})
			}
		}
		summary[t] = s
		total += len(qs)
	}

	respondOK(w, map[string]any{
		"level":               lvl,
		"questions_available": summary,
		"config_for_level":    h.engine.Config().Levels.PerLevel[lvl],
		"total_questions":     total,
	})
}

// handleUploadQuestions imports a question file into the bank and, when it
// added anything, swaps the selector over to a fresh snapshot of the bank.
// The file comes either as multipart field "file" or as a raw JSON body
// named by the "name" query parameter.
func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "question bank not available")
		return
	}

	var (
		name string
		data []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxQuestionFileBytes); err != nil {
			respondError(w, http.StatusBadRequest, "file too large")
			return
		}
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			respondError(w, http.StatusBadRequest, "no file uploaded")
			return
		}
		defer file.Close()
		name = header.Filename
		data, err = io.ReadAll(file)
	} else {
		name = r.URL.Query().Get("name")
		data, err = io.ReadAll(io.LimitReader(r.Body, maxQuestionFileBytes))
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	if name == "" {
		respondError(w, http.StatusBadRequest, "file name is required")
		return
	}

	res, err := h.store.ImportQuestions(name, data)
	if err != nil {
		slog.Warn("question upload rejected", "name", name, "error", err)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if res.Inserted > 0 {
		qs, err := h.store.ListQuestions()
		if err != nil {
			slog.Error("failed to reload questions", "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		h.selector.SetCorpus(corpus.New(qs))
	}
	slog.Info("uploaded questions via admin", "name", name, "status", res.Status, "inserted", res.Inserted)

	respondOK(w, struct {
		store.ImportResult
		CorpusSize int `json:"corpus_size"`
	}{res, h.selector.Corpus().Len()})
}
