package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/coursegen/internal/chapters"
	"github.com/pavelanni/coursegen/internal/course"
	"github.com/pavelanni/coursegen/internal/handler"
	appI18n "github.com/pavelanni/coursegen/internal/i18n"
	"github.com/pavelanni/coursegen/internal/llm"
	"github.com/pavelanni/coursegen/internal/model"
	"github.com/pavelanni/coursegen/internal/quiz"
	"github.com/pavelanni/coursegen/internal/retry"
	"github.com/pavelanni/coursegen/internal/store"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "coursegen",
		Short:        "Chapter outlines and quizzes from video transcripts",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), chaptersCmd(), quizCmd(), hashTokenCmd(), versionCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `coursegen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func commonFlags(f *pflag.FlagSet) {
	f.String("db", "coursegen.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func pipelineFlags(f *pflag.FlagSet) {
	f.String("artifact-store", "sqlite", "Where chapters and quizzes are kept (sqlite, redis)")
	f.String("redis-addr", "localhost:6379", "Redis address for --artifact-store=redis")
	f.String("redis-prefix", "coursegen:", "Redis key prefix")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name for chapter generation")
	f.String("quiz-model", "", "LLM model name for quiz generation (default: --llm-model)")
	f.Bool("llm-ping", true, "Check the LLM endpoint on startup")
	f.Int("chunk-chars", 5000, "Maximum characters per transcript chunk")
	f.Duration("section-cooldown", 4500*time.Millisecond, "Pause between transcript chunk requests")
	f.Int("chapter-attempts", 3, "Attempts per chapter generation request")
	f.Duration("chapter-rate-limit-wait", 15*time.Second, "Base wait after a rate-limited chapter request")
	f.Int("quiz-attempts", 3, "Attempts per quiz generation request")
	f.Duration("quiz-rate-limit-wait", 50*time.Second, "Base wait after a rate-limited quiz request")
	f.Duration("malformed-backoff", time.Second, "Base wait after an unparseable response")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.String("api-token-hash", "", "bcrypt hash of the API bearer token (empty disables auth)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /coursegen)")
	f.Duration("request-timeout", 10*time.Minute, "Per-request timeout")
	f.String("merge", string(course.MergeGap), "Caption merge mode for created courses (gap, window)")
	commonFlags(f)
	pipelineFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <course.json>...",
		Short: "Import courses from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("merge", string(course.MergeGap), "Caption merge mode (gap, window)")
	commonFlags(f)
	return cmd
}

func chaptersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chapters <course-id>",
		Short: "Print the chapters of a course, generating them if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.chapters.Chapters(ctx, args[0])
			})
		},
	}
	commonFlags(cmd.Flags())
	pipelineFlags(cmd.Flags())
	return cmd
}

func quizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz <course-id>",
		Short: "Print the quiz of a course, generating it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.quiz.Quiz(ctx, args[0])
			})
		},
	}
	commonFlags(cmd.Flags())
	pipelineFlags(cmd.Flags())
	return cmd
}

func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash to use for --api-token-hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := handler.HashToken(args[0])
			if err != nil {
				return fmt.Errorf("hash token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
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

	v.SetEnvPrefix("COURSEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("coursegen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/coursegen")
	v.AddConfigPath("/etc/coursegen")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app is the wired pipeline shared by serve and the one-shot commands.
type app struct {
	db       *store.Store
	catalog  *store.Catalog
	chapters *chapters.Service
	quiz     *quiz.Service
	closers  []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close", "error", err)
		}
	}
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{db: db, closers: []io.Closer{db}}

	var artifacts store.Artifacts = db
	switch backend := strings.ToLower(v.GetString("artifact-store")); backend {
	case "", "sqlite":
	case "redis":
		r, err := store.ConnectRedis(v.GetString("redis-addr"), v.GetString("redis-prefix"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, r)
		artifacts = r
		slog.Info("using redis artifact store", "addr", v.GetString("redis-addr"))
	default:
		a.Close()
		return nil, fmt.Errorf("unknown artifact store %q", backend)
	}
	a.catalog = store.NewCatalog(db, artifacts)

	llmClient := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
	if v.GetBool("llm-ping") {
		if err := llmClient.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", llmClient.Model())
	}
	quizClient := llmClient
	if m := v.GetString("quiz-model"); m != "" {
		quizClient = llmClient.WithModel(m)
	}

	chapterCfg := chapters.DefaultConfig()
	chapterCfg.ChunkChars = v.GetInt("chunk-chars")
	chapterCfg.Cooldown = v.GetDuration("section-cooldown")
	chapterCfg.Policy.MaxAttempts = v.GetInt("chapter-attempts")
	chapterCfg.Policy.RateLimitWait = v.GetDuration("chapter-rate-limit-wait")
	chapterCfg.Policy.MalformedBackoff = v.GetDuration("malformed-backoff")
	a.chapters = chapters.NewService(a.catalog, a.catalog, llmClient, chapterCfg, slog.Default())

	quizPolicy := retry.Policy{
		MaxAttempts:      v.GetInt("quiz-attempts"),
		RateLimitWait:    v.GetDuration("quiz-rate-limit-wait"),
		MalformedBackoff: v.GetDuration("malformed-backoff"),
	}
	a.quiz = quiz.NewService(a.catalog, a.catalog, quizClient, quizPolicy, slog.Default())

	return a, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	importer := course.NewImporter(a.db, course.MergeMode(v.GetString("merge")))
	h := handler.New(a.catalog, importer, a.chapters, a.quiz, handler.Config{
		TokenHash: v.GetString("api-token-hash"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(v.GetDuration("request-timeout")))
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	slog.Info("starting server",
		"addr", addr,
		"version", version,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"artifact_store", v.GetString("artifact-store"),
		"lang", lang,
		"base_path", basePath,
		"auth", v.GetString("api-token-hash") != "",
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runPipeline(cmd *cobra.Command, run func(ctx context.Context, a *app) (any, error)) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := run(ctx, a)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	importer := course.NewImporter(db, course.MergeMode(v.GetString("merge")))
	for _, path := range args {
		if err := importFile(db, importer, path, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	return nil
}

func importFile(db *store.Store, importer *course.Importer, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("course file unchanged, skipping", "path", path)
		return nil
	}
	if storedHash != "" {
		slog.Warn("course file changed since last import, skipping to keep generated artifacts consistent",
			"path", path)
		return nil
	}

	var imp model.CourseImport
	if err := json.Unmarshal(data, &imp); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c, segments, err := importer.Import(imp)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	if err := db.SetImportedFileHash(path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported course", "path", path, "course_id", c.ID, "segments", segments)
	_, err = fmt.Fprintln(out, c.ID)
	return err
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
