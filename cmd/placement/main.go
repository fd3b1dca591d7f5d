package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/placement/internal/assess"
	"github.com/pavelanni/placement/internal/audio"
	"github.com/pavelanni/placement/internal/config"
	"github.com/pavelanni/placement/internal/corpus"
	"github.com/pavelanni/placement/internal/exam"
	"github.com/pavelanni/placement/internal/handler"
	appI18n "github.com/pavelanni/placement/internal/i18n"
	"github.com/pavelanni/placement/internal/model"
	"github.com/pavelanni/placement/internal/scoring"
	"github.com/pavelanni/placement/internal/selector"
	"github.com/pavelanni/placement/internal/store"
)

func main() {
	// Provider keys are commonly kept in a local .env file.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "placement",
		Short: "Adaptive CEFR placement exam server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `placement --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "placement.db", "SQLite database path")
	f.StringSliceP("questions", "q", []string{"questions"}, "Question JSON files or directories of them (repeatable)")
	f.StringP("exam-config", "c", "", "Exam configuration file (YAML or JSON); empty uses the built-in default")
	f.String("audio-dir", "uploads/audio", "Directory for uploaded response recordings")
	f.String("provider-url", assess.DefaultBaseURL, "Speech assessment API base URL")
	f.String("provider-key", "", "Speech assessment API key (or set PLACEMENT_PROVIDER_KEY); empty means mock scoring")
	f.Int64("provider-concurrency", 4, "Maximum concurrent speech assessment calls")
	f.Uint("provider-retries", 3, "Maximum attempts per speech assessment call")
	f.StringP("lang", "l", "en", "Default language for notes and labels (en, es)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /placement)")
	f.Uint64("seed", 0, "Random seed for question draws (0 = time based)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived exam reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "placement.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PLACEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("placement")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/placement")
	v.AddConfigPath("/etc/placement")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// randSource returns a seeded source, or nil to let the consumer seed from
// the clock. Each consumer gets its own stream.
func randSource(seed, stream uint64) rand.Source {
	if seed == 0 {
		return nil
	}
	return rand.NewPCG(seed, stream)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := config.LoadOrDefault(v.GetString("exam-config"))
	slog.Info("exam configuration loaded", "source", cfg.Source, "levels", cfg.Levels.Order,
		"questions_per_exam", cfg.TotalQuestions())

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadQuestions(db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	bank, err := buildCorpus(db)
	if err != nil {
		return fmt.Errorf("build corpus: %w", err)
	}

	var provider assess.Provider
	if key := v.GetString("provider-key"); key != "" {
		provider = assess.NewClient(v.GetString("provider-url"), key,
			assess.WithConcurrency(v.GetInt64("provider-concurrency")),
			assess.WithRetry(v.GetUint("provider-retries"), 500*time.Millisecond),
		)
		slog.Info("speech assessment enabled", "url", v.GetString("provider-url"))
	} else {
		slog.Warn("no provider key configured, audio responses get mock scores")
	}

	seed := v.GetUint64("seed")
	audioStore := audio.Local{Root: v.GetString("audio-dir")}
	sel := selector.New(cfg, bank, randSource(seed, 1))
	eval := scoring.NewEvaluator(cfg, provider, audioStore, randSource(seed, 2))
	engine := exam.New(cfg, sel, eval, exam.WithReportSink(db))

	if !drawable(cfg, bank, cfg.FirstLevel()) {
		slog.Error("entry level has no questions, exams cannot start until questions are uploaded",
			"level", cfg.FirstLevel())
	}

	h := handler.New(engine, db, sel, audioStore)

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"db", v.GetString("db"),
		"questions", bank.Len(),
		"audio_dir", audioStore.Root,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reports, err := db.ExportReports()
	if err != nil {
		return fmt.Errorf("export reports: %w", err)
	}

	export := model.ReportExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(reports),
		Reports:    reports,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// questionFiles expands directories into the JSON files they contain.
func questionFiles(paths []string) []string {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			slog.Warn("questions path not found, skipping", "path", p)
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(p, "*.json"))
		files = append(files, matches...)
	}
	return files
}

func loadQuestions(db *store.Store, paths []string) error {
	for _, path := range questionFiles(paths) {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := db.ImportQuestions(path, data)
		if err != nil {
			// A broken file must not take the bank down with it.
			slog.Error("skipping unreadable questions file", "path", path, "error", err)
			continue
		}
		switch res.Status {
		case store.ImportUnchanged:
			slog.Info("questions file unchanged, skipping", "path", path)
		case store.ImportChanged:
			slog.Warn("questions file changed since last import, skipping to avoid breaking existing sessions",
				"path", path)
		default:
			slog.Info("imported questions", "path", path, "parsed", res.Parsed, "inserted", res.Inserted)
		}
	}
	return nil
}

// buildCorpus snapshots the question bank, falling back to the built-in
// questions when the bank is empty.
func buildCorpus(db *store.Store) (*corpus.Corpus, error) {
	qs, err := db.ListQuestions()
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		slog.Warn("question bank is empty, using built-in fallback questions")
		return corpus.Fallback(), nil
	}
	return corpus.New(qs), nil
}

// drawable reports whether the bank holds any question of a type lvl uses.
func drawable(cfg *config.Exam, bank *corpus.Corpus, lvl model.Level) bool {
	for _, tc := range cfg.TypeCounts(lvl) {
		if len(bank.Questions(lvl, tc.Type)) > 0 {
			return true
		}
	}
	return false
}
