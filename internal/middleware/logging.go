// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RunIDHeader は実行IDを返すレスポンスヘッダー。
const RunIDHeader = "X-Run-ID"

type runIDKey struct{}

// WithRunID は新しい実行IDを採番してctxに格納する。
func WithRunID(ctx context.Context) context.Context {
	return context.WithValue(ctx, runIDKey{}, uuid.NewString())
}

// RunIDFromContext はctxの実行IDを返す。未設定の場合は空文字列。
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// RunID はリクエストごとに実行IDを採番するミドルウェア。
func RunID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRunID(r.Context())
		w.Header().Set(RunIDHeader, RunIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuditLog は監査ログの構造体。
type AuditLog struct {
	RunID     string `json:"run_id"`
	Operation string `json:"operation"`
	Version   string `json:"version,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// NewAuditLog は監査ログを組み立てる。
func NewAuditLog(ctx context.Context, operation, version, phase, result string) AuditLog {
	return AuditLog{
		RunID:     RunIDFromContext(ctx),
		Operation: operation,
		Version:   version,
		Phase:     phase,
		Result:    result,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// WriteAuditLog は監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation, version, phase, result string) {
	l := NewAuditLog(ctx, operation, version, phase, result)
	slog.InfoContext(ctx, "migration operation completed",
		"run_id", l.RunID,
		"operation", l.Operation,
		"version", l.Version,
		"phase", l.Phase,
		"result", l.Result,
		"timestamp", l.Timestamp,
	)
}
