package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/matchbook/internal/application"
	"github.com/example/matchbook/internal/reservation"
)

var (
	errBadRequestBody     = errors.New("無効なリクエスト形式です。")
	errInvalidSubjectID   = errors.New("無効な対象者 ID です。")
	errInvalidReservation = errors.New("無効な予約 ID です。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) writeFieldErrors(ctx context.Context, w http.ResponseWriter, fields map[string]string) {
	r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
		ErrorCode: "VALIDATION_FAILED",
		Message:   localizedStatusMessage(http.StatusUnprocessableEntity),
		Errors:    fields,
	})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr *application.ValidationError
		sErr *reservation.InvalidStateTransitionError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeFieldErrors(ctx, w, localizeValidationErrors(vErr))
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "NOT_FOUND",
			Message:   localizedStatusMessage(http.StatusNotFound),
		})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "ALREADY_EXISTS",
			Message:   "同じリソースが既に登録されています。",
		})
	case errors.As(err, &sErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "INVALID_STATE_TRANSITION",
			Message:   fmt.Sprintf("現在の状態 (%s) では %s を実行できません。", sErr.Status, sErr.Operation),
		})
	case errors.Is(err, application.ErrConcurrentUpdate):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "CONCURRENT_UPDATE",
			Message:   "予約が同時に更新されました。再度お試しください。",
		})
	case errors.Is(err, application.ErrPaymentFailed):
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{
			ErrorCode: "PAYMENT_FAILED",
			Message:   "決済処理に失敗しました。",
		})
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			Message: localizedStatusMessage(http.StatusInternalServerError),
		})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return requestLogger(ctx, r.logger)
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	case http.StatusBadGateway:
		return "外部サービスとの通信に失敗しました。"
	case http.StatusServiceUnavailable:
		return "サービスを利用できません。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "alias is required":
		return "ペルソナ名は必須です。"
	case "unknown persona":
		return "指定されたペルソナは存在しません。"
	case "subject id is required":
		return "対象者 ID は必須です。"
	case "weight must be 1 (secondary) or 2 (primary)":
		return "重みは 1 (サブ) または 2 (メイン) で指定してください。"
	case "social personas need one primary and one secondary":
		return "ソーシャルペルソナはメインとサブを 1 つずつ指定してください。"
	case "persona category does not match":
		return "ペルソナのカテゴリが一致しません。"
	case "category must be one of student, social, achievement, fantasy":
		return "カテゴリは student, social, achievement, fantasy のいずれかで指定してください。"
	case "at least one subject id is required":
		return "少なくとも 1 名の対象者 ID を指定してください。"
	case "at least one candidate other than the subject is required":
		return "対象者以外の候補者を少なくとも 1 名指定してください。"
	case "unknown venue":
		return "指定された会場は存在しません。"
	case "reservation id is required":
		return "予約 ID は必須です。"
	case "subject is required":
		return "予約者は必須です。"
	case "venue is required":
		return "会場は必須です。"
	case "scheduled_at is required":
		return "予約日時は必須です。"
	case "scheduled_at must be in the future":
		return "予約日時は未来の日時で指定してください。"
	case "party_size must be at least 1":
		return "人数は 1 名以上で指定してください。"
	case "status must be one of pending, confirmed, cancelled, completed":
		return "状態は pending, confirmed, cancelled, completed のいずれかで指定してください。"
	case "limit must not be negative":
		return "件数には 0 以上を指定してください。"
	default:
		if strings.HasPrefix(message, "party_size must be at most ") {
			return "人数は " + strings.TrimPrefix(message, "party_size must be at most ") + " 名以下で指定してください。"
		}
		if strings.HasPrefix(message, "at most ") && strings.HasSuffix(message, " social personas may be assigned") {
			return "ソーシャルペルソナは最大 " + strings.TrimSuffix(strings.TrimPrefix(message, "at most "), " social personas may be assigned") + " 件まで登録できます。"
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
