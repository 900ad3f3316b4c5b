package main

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grounded-chat/internal/ingest"
	"github.com/sells-group/grounded-chat/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server.AuthTokens, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *chatEnv, authTokens, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(authTokens))

		r.Post("/api/chat", handleChat(env))
		r.Delete("/api/chat/{chatID}", handleDeleteChat(env))
		r.Get("/api/chat/{chatID}/messages", handleListMessages(env))
		r.Delete("/api/chat/{chatID}/messages", handleTrimMessages(env))
		r.Post("/api/documents", handleCreateDocument(env))
	})

	return r
}

// bearerAuth rejects requests whose Authorization header does not carry one
// of the configured tokens. An empty token list disables auth (local use).
func bearerAuth(tokens []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(tokens) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			for _, t := range tokens {
				if subtle.ConstantTimeCompare([]byte(presented), []byte(t)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		})
	}
}

type chatRequest struct {
	ChatID    string `json:"chat_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
}

// handleChat runs one turn and streams its events as server-sent events.
func handleChat(env *chatEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.ChatID == "" || req.Message == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat_id and message are required"})
			return
		}
		if req.UserID == "" {
			req.UserID = "local"
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		events := env.Pipeline.Run(r.Context(), pipeline.TurnRequest{
			ChatID:    req.ChatID,
			UserID:    req.UserID,
			Content:   req.Message,
			MessageID: req.MessageID,
		})

		enc := json.NewEncoder(w)
		for ev := range events {
			if _, err := fmt.Fprintf(w, "event: %s\ndata: ", ev.Type); err != nil {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func handleDeleteChat(env *chatEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := chi.URLParam(r, "chatID")
		if err := env.Store.DeleteChat(r.Context(), chatID); err != nil {
			zap.L().Error("delete chat failed", zap.String("chat_id", chatID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "delete failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "chat_id": chatID})
	}
}

func handleListMessages(env *chatEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := chi.URLParam(r, "chatID")
		msgs, err := env.Store.ListMessages(r.Context(), chatID)
		if err != nil {
			zap.L().Error("list messages failed", zap.String("chat_id", chatID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// handleTrimMessages deletes every message in a chat created strictly after
// the given RFC 3339 cutoff.
func handleTrimMessages(env *chatEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := chi.URLParam(r, "chatID")
		cutoff, err := time.Parse(time.RFC3339, r.URL.Query().Get("after"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "after must be an RFC 3339 timestamp"})
			return
		}
		deleted, err := env.Store.DeleteMessagesAfter(r.Context(), chatID, cutoff)
		if err != nil {
			zap.L().Error("trim messages failed", zap.String("chat_id", chatID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trim failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	}
}

type documentRequest struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// handleCreateDocument ingests inline content or a URL into the index.
func handleCreateDocument(env *chatEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req documentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.UserID == "" {
			req.UserID = "local"
		}

		var (
			res *ingest.Result
			err error
		)
		switch {
		case req.URL != "":
			res, err = env.Ingestor.IngestURL(r.Context(), req.UserID, req.URL)
		case req.Content != "":
			res, err = env.Ingestor.IngestText(r.Context(), req.UserID, req.Title, req.Content)
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content or url is required"})
			return
		}
		if err != nil {
			zap.L().Error("document ingestion failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ingestion failed"})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"document_id": res.DocumentID,
			"title":       res.Title,
			"chunks":      res.Chunks,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
