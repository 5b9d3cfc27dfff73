package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coreezy/sloth-race-watcher/common/logging"
)

const maxBodyBytes = 64 << 10

// serve runs server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, logger logging.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("%s receives shutdown signal.", server.Addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("server closed under request")
			return nil
		}
		logger.Error("server closed unexpected: %v", err)
		return err
	}
}

// bearerAuth admits requests carrying "Authorization: Bearer <secret>". An empty
// secret locks the routes.
func bearerAuth(secret string, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				logger.Warn("unauthorized %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
				jsonError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// decodeBody reads a JSON body into v. An empty body is accepted when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	var body struct {
		Error string `json:"error"`
	}
	body.Error = msg
	writeJSON(w, code, body)
}
