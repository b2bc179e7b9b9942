package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/rolesync/internal/database/types"
	restTypes "github.com/robalyx/rolesync/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// GuildStore manages guild role configurations.
type GuildStore interface {
	GetGuildConfig(ctx context.Context, guildID snowflake.ID) (*types.GuildConfig, error)
	UpsertGuildRoles(ctx context.Context, guildID, contributorRoleID, stargazerRoleID snowflake.ID) error
	FollowRepository(ctx context.Context, guildID snowflake.ID, fullName string) error
	UnfollowRepository(ctx context.Context, guildID snowflake.ID, fullName string) error
	DeleteGuildConfig(ctx context.Context, guildID snowflake.ID) error
}

// HistoryReader reads guild sync history.
type HistoryReader interface {
	GetGuildHistory(ctx context.Context, guildID snowflake.ID, limit int) ([]*types.SyncHistory, error)
}

// GuildHandler handles guild configuration and history endpoints.
type GuildHandler struct {
	guilds  GuildStore
	history HistoryReader
	logger  *zap.Logger
}

// NewGuildHandler creates a new guild handler.
func NewGuildHandler(guilds GuildStore, history HistoryReader, logger *zap.Logger) *GuildHandler {
	return &GuildHandler{
		guilds:  guilds,
		history: history,
		logger:  logger,
	}
}

// GetGuild returns a guild configuration with its followed repositories.
func (h *GuildHandler) GetGuild(w http.ResponseWriter, req bunrouter.Request) error {
	guildID, err := snowflakeParam(req, "id")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	config, err := h.guilds.GetGuildConfig(req.Context(), guildID)
	if err != nil {
		if errors.Is(err, types.ErrGuildConfigNotFound) {
			return writeError(w, http.StatusNotFound, err.Error())
		}

		h.logger.Error("Failed to get guild config", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	return writeJSON(w, http.StatusOK, config)
}

// SetRoles assigns the contributor and stargazer roles of a guild.
func (h *GuildHandler) SetRoles(w http.ResponseWriter, req bunrouter.Request) error {
	guildID, err := snowflakeParam(req, "id")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	var body restTypes.GuildRolesRequest
	if err := decodeBody(req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	if err := h.guilds.UpsertGuildRoles(req.Context(), guildID, body.ContributorRoleID, body.StargazerRoleID); err != nil {
		h.logger.Error("Failed to set guild roles", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	return h.GetGuild(w, req)
}

// DeleteGuild removes a guild configuration.
func (h *GuildHandler) DeleteGuild(w http.ResponseWriter, req bunrouter.Request) error {
	guildID, err := snowflakeParam(req, "id")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	if err := h.guilds.DeleteGuildConfig(req.Context(), guildID); err != nil {
		h.logger.Error("Failed to delete guild config", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

// FollowRepository adds a repository to a guild.
func (h *GuildHandler) FollowRepository(w http.ResponseWriter, req bunrouter.Request) error {
	guildID, err := snowflakeParam(req, "id")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	var body restTypes.FollowRepositoryRequest
	if err := decodeBody(req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	if err := h.guilds.FollowRepository(req.Context(), guildID, body.Repository); err != nil {
		if errors.Is(err, types.ErrInvalidRepository) {
			return writeError(w, http.StatusBadRequest, err.Error())
		}

		h.logger.Error("Failed to follow repository", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	return h.GetGuild(w, req)
}

// UnfollowRepository removes a repository from a guild.
func (h *GuildHandler) UnfollowRepository(w http.ResponseWriter, req bunrouter.Request) error {
	guildID, err := snowflakeParam(req, "id")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	fullName := req.Param("owner") + "/" + req.Param("name")

	if err := h.guilds.UnfollowRepository(req.Context(), guildID, fullName); err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidRepository):
			return writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, types.ErrRepositoryNotTracked):
			return writeError(w, http.StatusNotFound, err.Error())
		}

		h.logger.Error("Failed to unfollow repository", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

// History returns recent passes of a guild.
func (h *GuildHandler) History(w http.ResponseWriter, req bunrouter.Request) error {
	guildID, err := snowflakeParam(req, "id")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	history, err := h.history.GetGuildHistory(req.Context(), guildID, historyLimit(req))
	if err != nil {
		h.logger.Error("Failed to get guild history", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	if history == nil {
		history = []*types.SyncHistory{}
	}

	return writeJSON(w, http.StatusOK, restTypes.HistoryResponse{
		GuildID: guildID,
		History: history,
	})
}
