package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/simbiat/fftracker/internal/authz"
	"github.com/simbiat/fftracker/internal/middleware"
	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/tracker"
)

// EntityOpener は種別とIDからエンティティを生成するインターフェース。
type EntityOpener interface {
	Open(kind model.EntityType, id string) (tracker.Refresher, error)
}

// CharacterLinker はキャラクターをユーザーに紐付けるインターフェース。
type CharacterLinker interface {
	LinkUser(ctx context.Context, characterID, userID string) model.LinkResult
}

// RefreshAuthorizer はAPIからの更新要求を認可するインターフェース。
type RefreshAuthorizer interface {
	CanRefresh(ctx context.Context, userID string, kind model.EntityType, id string) (bool, error)
}

// EntityHandler はエンティティの参照・登録・更新・紐付けのHTTPハンドラー。
type EntityHandler struct {
	opener     EntityOpener
	linker     CharacterLinker
	authorizer RefreshAuthorizer
	logger     *slog.Logger
}

// NewEntityHandler はEntityHandlerを生成する。
func NewEntityHandler(opener EntityOpener, linker CharacterLinker, authorizer RefreshAuthorizer, logger *slog.Logger) *EntityHandler {
	return &EntityHandler{
		opener:     opener,
		linker:     linker,
		authorizer: authorizer,
		logger:     logger,
	}
}

// statusResponse は更新系APIの成功レスポンス。
type statusResponse struct {
	Status string           `json:"status"`
	Type   model.EntityType `json:"type"`
	ID     string           `json:"id"`
}

// parseEntity はURLパラメータから種別とIDを取り出して検証する。
// 不正な場合はエラーレスポンスを書き込みfalseを返す。
func parseEntity(w http.ResponseWriter, r *http.Request) (model.EntityType, string, bool) {
	rawType := chi.URLParam(r, "type")
	kind, err := model.ParseEntityType(rawType)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUnknownEntityTypeError(rawType))
		return "", "", false
	}
	id := chi.URLParam(r, "id")
	if err := kind.ValidateID(id); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidIDError(kind, id))
		return "", "", false
	}
	return kind, id, true
}

// open はエンティティを生成する。失敗した場合は500を書き込む。
func (h *EntityHandler) open(w http.ResponseWriter, kind model.EntityType, id string) (tracker.Refresher, bool) {
	entity, err := h.opener.Open(kind, id)
	if err != nil {
		h.logger.Error("エンティティの生成に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return entity, true
}

// GetEntity は保存済みのエンティティを返す。古い場合は更新ジョブを登録し、
// その実行予定時刻をscheduledに含める。
// GET /api/ffxiv/{type}/{id}
func (h *EntityHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := parseEntity(w, r)
	if !ok {
		return
	}
	entity, ok := h.open(w, kind, id)
	if !ok {
		return
	}

	data, err := entity.ToMap(r.Context())
	if err != nil {
		h.logger.Error("エンティティの読み込みに失敗しました",
			slog.String("kind", string(kind)),
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if data == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewEntityNotFoundError(kind, id))
		return
	}

	var scheduled *time.Time
	if next, err := entity.ScheduleUpdate(r.Context()); err != nil {
		// 参照自体は成功させる
		h.logger.Warn("更新ジョブの登録に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
	} else if next != nil {
		t := next.UTC()
		scheduled = &t
	}
	data["scheduled"] = scheduled

	middleware.WriteJSON(w, http.StatusOK, data)
}

// RegisterEntity は未登録のエンティティをLodestoneから取得して登録する。
// POST /api/ffxiv/{type}/{id}/register
func (h *EntityHandler) RegisterEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := parseEntity(w, r)
	if !ok {
		return
	}
	entity, ok := h.open(w, kind, id)
	if !ok {
		return
	}

	status := entity.Register(r.Context())
	switch status {
	case model.RegisterCreated:
		middleware.WriteJSON(w, status.HTTPStatus(), statusResponse{Status: "registered", Type: kind, ID: id})
	case model.RegisterNoID:
		middleware.WriteErrorResponse(w, status.HTTPStatus(), model.NewInvalidIDError(kind, id))
	case model.RegisterForbidden:
		middleware.WriteErrorResponse(w, status.HTTPStatus(), model.NewRegisterForbiddenError(kind, id))
	case model.RegisterNotFound:
		middleware.WriteErrorResponse(w, status.HTTPStatus(), model.NewEntityNotFoundError(kind, id))
	case model.RegisterAlreadyRegistered:
		middleware.WriteErrorResponse(w, status.HTTPStatus(), model.NewAlreadyRegisteredError(kind, id))
	default:
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSourceUnavailableError())
	}
}

// UpdateEntity は認可されたユーザーの要求でエンティティを即時更新する。
// 失敗した場合は再試行ジョブが登録され、その時刻を含むメッセージを返す。
// POST /api/ffxiv/{type}/{id}/update
func (h *EntityHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	kind, id, ok := parseEntity(w, r)
	if !ok {
		return
	}

	allowed, err := h.authorizer.CanRefresh(r.Context(), userID, kind, id)
	if err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError())
			return
		}
		h.logger.Error("更新権限の確認に失敗しました",
			slog.String("user_id", userID),
			slog.String("kind", string(kind)),
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSourceUnavailableError())
		return
	}
	if !allowed {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewRefreshForbiddenError())
		return
	}

	entity, ok := h.open(w, kind, id)
	if !ok {
		return
	}

	if err := entity.UpdateFromAPI(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tracker.ErrThrottled) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Warn("APIからの更新に失敗しました",
			slog.String("user_id", userID),
			slog.String("kind", string(kind)),
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, status, model.NewRefreshFailedError(err.Error()))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, statusResponse{Status: "updated", Type: kind, ID: id})
}

// LinkCharacter はログイン中のユーザーにキャラクターを紐付ける。
// POST /api/ffxiv/character/{id}/link
func (h *EntityHandler) LinkCharacter(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	id := chi.URLParam(r, "id")
	if err := model.EntityCharacter.ValidateID(id); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidIDError(model.EntityCharacter, id))
		return
	}

	res := h.linker.LinkUser(r.Context(), id, userID)
	if res.Status != model.LinkOK {
		middleware.WriteErrorResponse(w, int(res.Status), model.NewLinkFailedError(res.Reason))
		return
	}

	h.logger.Info("キャラクターを紐付けました",
		slog.String("user_id", userID),
		slog.String("entity_id", id),
	)
	middleware.WriteJSON(w, http.StatusOK, statusResponse{Status: "linked", Type: model.EntityCharacter, ID: id})
}
