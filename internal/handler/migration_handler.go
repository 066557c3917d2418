// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"migration-service/internal/domain"
	"migration-service/internal/middleware"
	"migration-service/internal/usecase"
	"migration-service/pkg/httputil"
)

var versionRegex = regexp.MustCompile(`^[0-9]{14}$`)

// 監査ログの操作名
const (
	OpInitialize     = "INITIALIZE_TABLE"
	OpGenerate       = "GENERATE_MIGRATION"
	OpExecute        = "EXECUTE_MIGRATION"
	OpExecutePending = "EXECUTE_PENDING"
)

// 監査ログの結果
const (
	auditSuccess = "SUCCESS"
	auditFailed  = "FAILED"
)

// MigrationHandler はマイグレーション管理APIのハンドラ。
type MigrationHandler struct {
	service *usecase.MigrationService
}

// NewMigrationHandler は新しいMigrationHandlerを生成する。
func NewMigrationHandler(service *usecase.MigrationService) *MigrationHandler {
	return &MigrationHandler{service: service}
}

func validateVersion(version string) error {
	if !versionRegex.MatchString(version) {
		return domain.ErrInvalidVersion
	}
	return nil
}

// MigrationStateResponse はバージョンごとの状態のレスポンス形式。
type MigrationStateResponse struct {
	Version          string  `json:"version"`
	Identifier       string  `json:"identifier"`
	Prepared         bool    `json:"prepared"`
	Status           string  `json:"status"`
	BeforeExecutedAt *string `json:"before_executed_at"`
	AfterExecutedAt  *string `json:"after_executed_at"`
}

// StatusResponse は状態一覧のレスポンス形式。
type StatusResponse struct {
	Migrations []MigrationStateResponse `json:"migrations"`
}

// VersionsResponse はバージョン一覧のレスポンス形式。
type VersionsResponse struct {
	Versions []string `json:"versions"`
}

// GenerateRequest は生成リクエストの形式。
type GenerateRequest struct {
	Statements []string `json:"statements"`
}

// GenerateResponse は生成結果のレスポンス形式。
type GenerateResponse struct {
	Version  string `json:"version"`
	FilePath string `json:"file_path"`
}

// ExecuteResponse は実行結果のレスポンス形式。
type ExecuteResponse struct {
	Version string `json:"version"`
	Phase   string `json:"phase"`
	RunID   string `json:"run_id"`
}

// PendingResponse は未実行マイグレーション一括実行のレスポンス形式。
type PendingResponse struct {
	Phase    string   `json:"phase"`
	Executed []string `json:"executed"`
	RunID    string   `json:"run_id"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// InitializeTable はledgerテーブルを作成する。
func (h *MigrationHandler) InitializeTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.InitializeMigrationTable(ctx); err != nil {
		middleware.WriteAuditLog(ctx, OpInitialize, "", "", auditFailed)
		if errors.Is(err, domain.ErrSchemaConflict) {
			httputil.Error(w, http.StatusConflict, "SCHEMA_CONFLICT", "migration table already exists")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(ctx, OpInitialize, "", "", auditSuccess)
	httputil.JSON(w, http.StatusCreated, nil)
}

// GetStatus はバージョンごとの状態を返す。
func (h *MigrationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	states, err := h.service.GetMigrationStatus(r.Context())
	if err != nil {
		writeListError(w, err)
		return
	}

	resp := StatusResponse{Migrations: make([]MigrationStateResponse, 0, len(states))}
	for _, st := range states {
		resp.Migrations = append(resp.Migrations, MigrationStateResponse{
			Version:          st.Version,
			Identifier:       st.Identifier,
			Prepared:         st.Prepared,
			Status:           string(st.Status),
			BeforeExecutedAt: formatTime(st.BeforeAt),
			AfterExecutedAt:  formatTime(st.AfterAt),
		})
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// ListPrepared は準備済みバージョンを返す。
func (h *MigrationHandler) ListPrepared(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.GetPreparedVersions(r.Context())
	if err != nil {
		writeListError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, VersionsResponse{Versions: versions})
}

// ListExecuted は指定フェーズで実行済みのバージョンを返す。
func (h *MigrationHandler) ListExecuted(w http.ResponseWriter, r *http.Request) {
	phase, err := domain.ParsePhase(r.URL.Query().Get("phase"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PHASE", "phase must be before or after")
		return
	}

	versions, err := h.service.GetExecutedVersions(r.Context(), phase)
	if err != nil {
		writeListError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, VersionsResponse{Versions: versions})
}

// Generate はSQL文の一覧からマイグレーションファイルを生成する。
func (h *MigrationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := validateStatements(req.Statements); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_STATEMENTS", "statements must be a non-empty list of SQL")
		return
	}

	file, err := h.service.GenerateMigrationFile(ctx, req.Statements)
	if err != nil {
		middleware.WriteAuditLog(ctx, OpGenerate, "", "", auditFailed)
		httputil.Error(w, http.StatusInternalServerError, "WRITE_ERROR", "failed to write migration file")
		return
	}

	middleware.WriteAuditLog(ctx, OpGenerate, file.Version, "", auditSuccess)
	httputil.JSON(w, http.StatusCreated, GenerateResponse{
		Version:  file.Version,
		FilePath: file.FilePath,
	})
}

func validateStatements(statements []string) error {
	if len(statements) == 0 {
		return domain.ErrInvalidStatements
	}
	for _, s := range statements {
		if strings.TrimSpace(s) == "" {
			return domain.ErrInvalidStatements
		}
	}
	return nil
}

// Execute は指定バージョンのフェーズを実行する。
func (h *MigrationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	version := chi.URLParam(r, "version")
	if err := validateVersion(version); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_VERSION", "version must be YYYYMMDDHHMMSS")
		return
	}
	phaseParam := chi.URLParam(r, "phase")
	phase, err := domain.ParsePhase(phaseParam)
	if err != nil {
		middleware.WriteAuditLog(ctx, OpExecute, version, phaseParam, auditFailed)
		httputil.Error(w, http.StatusBadRequest, "INVALID_PHASE", "phase must be before or after")
		return
	}

	if err := h.service.ExecuteMigration(ctx, version, phase); err != nil {
		middleware.WriteAuditLog(ctx, OpExecute, version, string(phase), auditFailed)
		writeExecuteError(w, err)
		return
	}

	middleware.WriteAuditLog(ctx, OpExecute, version, string(phase), auditSuccess)
	httputil.JSON(w, http.StatusAccepted, ExecuteResponse{
		Version: version,
		Phase:   string(phase),
		RunID:   middleware.RunIDFromContext(ctx),
	})
}

// ExecutePending は未実行のマイグレーションをバージョン順に実行する。
func (h *MigrationHandler) ExecutePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	phase, err := domain.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PHASE", "phase must be before or after")
		return
	}

	executed, err := h.service.ExecutePendingMigrations(ctx, phase)
	for _, v := range executed {
		middleware.WriteAuditLog(ctx, OpExecutePending, v, string(phase), auditSuccess)
	}
	if err != nil {
		middleware.WriteAuditLog(ctx, OpExecutePending, "", string(phase), auditFailed)
		writeExecuteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusAccepted, PendingResponse{
		Phase:    string(phase),
		Executed: executed,
		RunID:    middleware.RunIDFromContext(ctx),
	})
}

func writeListError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrDirectoryNotFound) {
		httputil.Error(w, http.StatusNotFound, "DIRECTORY_NOT_FOUND", "migrations directory not found")
		return
	}
	httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func writeExecuteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPhase):
		httputil.Error(w, http.StatusBadRequest, "INVALID_PHASE", "phase must be before or after")
	case errors.Is(err, domain.ErrUnitNotFound):
		httputil.Error(w, http.StatusNotFound, "MIGRATION_NOT_FOUND", "migration not found")
	case errors.Is(err, domain.ErrDuplicateEntry):
		httputil.Error(w, http.StatusConflict, "ALREADY_EXECUTED", "migration phase already recorded")
	case errors.Is(err, domain.ErrDirectoryNotFound):
		httputil.Error(w, http.StatusNotFound, "DIRECTORY_NOT_FOUND", "migrations directory not found")
	default:
		httputil.Error(w, http.StatusInternalServerError, "EXECUTION_FAILED", "migration execution failed")
	}
}
