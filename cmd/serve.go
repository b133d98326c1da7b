package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"moray/internal/config"
	"moray/internal/httputil"
	"moray/internal/intercept"
	"moray/internal/media"
	"moray/internal/provider"
	"moray/internal/resolver"
	"moray/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resolution API and interception proxy",
	Long: `Serve exposes the resolver over HTTP and hosts the interception
fallback: embed pages proxied through this origin with a reporter script
injected, plus the websocket channel the script posts intercepted media
URLs to.`,
	RunE: serveRun,
}

func serveRun(cmd *cobra.Command, args []string) error {
	logger := newServeLogger(cfg)

	dbPath, err := config.DatabasePath()
	if err != nil {
		return fmt.Errorf("locating database: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	r := resolver.New(provider.Ranked(cfg), st, cfg.CacheTTL())
	r.Debugf = func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}

	router := mux.NewRouter()
	router.HandleFunc("/resolve", handleResolve(r, logger)).Methods(http.MethodPost)

	interceptSrv := intercept.NewServer(httputil.NewClient(), logger, embedHosts(cfg), cfg.Serve.PublicOrigin)
	interceptSrv.Routes(router)

	srv := &http.Server{
		Addr:              cfg.Serve.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Serve.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServeLogger builds the long-running process logger: structured, and
// rotated on disk when a log file is configured.
func newServeLogger(cfg *config.Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.Serve.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Serve.LogFile,
			MaxSize:    cfg.Serve.LogMaxSize,
			MaxAge:     cfg.Serve.LogMaxAge,
			MaxBackups: cfg.Serve.LogBackups,
		})
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// embedHosts maps provider ids to the hosts the interception proxy may
// fetch embed pages from.
func embedHosts(cfg *config.Config) map[string]string {
	hosts := map[string]string{
		"catalog":     cfg.Providers.CatalogHost,
		"multiserver": cfg.Providers.MultiServerHost,
		"gateway":     cfg.Providers.GatewayHost,
		"feedapi":     cfg.Providers.FeedHost,
		"altembed":    cfg.Providers.AltEmbedHost,
	}
	if len(cfg.Providers.InlineHosts) > 0 {
		hosts["inlineembed"] = cfg.Providers.InlineHosts[0]
	}
	return hosts
}

// resolveRequest is the wire shape of one resolution request.
type resolveRequest struct {
	ContentID     string   `json:"contentId"`
	MediaType     string   `json:"mediaType"`
	AudioTrack    string   `json:"audioTrack"`
	Season        int      `json:"season,omitempty"`
	Episode       int      `json:"episode,omitempty"`
	TitleHint     string   `json:"titleHint,omitempty"`
	ForceProvider string   `json:"forceProvider,omitempty"`
	SkipProviders []string `json:"skipProviders,omitempty"`
}

func handleResolve(r *resolver.Resolver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body resolveRequest
		if err := json.NewDecoder(io.LimitReader(req.Body, 1<<16)).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		key, err := keyFromRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := r.Resolve(req.Context(), key, resolver.Options{
			ForceProvider: body.ForceProvider,
			SkipProviders: body.SkipProviders,
		})
		if err != nil {
			logger.Error("resolution failed", "key", key.String(), "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		logger.Info("resolved", "key", key.String(), "provider", result.ProviderID, "cached", result.WasCached)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}

func keyFromRequest(body resolveRequest) (media.ResolutionKey, error) {
	var key media.ResolutionKey

	if err := httputil.ValidateID(body.ContentID); err != nil {
		return key, fmt.Errorf("invalid content id: %w", err)
	}
	mediaType := media.ParseMediaType(body.MediaType)
	if body.AudioTrack == "" {
		return key, fmt.Errorf("audioTrack is required")
	}
	if mediaType == media.Series && (body.Season <= 0 || body.Episode <= 0) {
		return key, fmt.Errorf("series keys need both season and episode")
	}

	return media.ResolutionKey{
		ContentID:  body.ContentID,
		Type:       mediaType,
		AudioTrack: body.AudioTrack,
		Season:     body.Season,
		Episode:    body.Episode,
		TitleHint:  body.TitleHint,
	}, nil
}
