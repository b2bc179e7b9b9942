package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/rolesync/internal/database/types"
	restTypes "github.com/robalyx/rolesync/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// AccountStore manages linked identities.
type AccountStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*types.LinkedAccount, error)
	GetByGitHubLogin(ctx context.Context, login string) (*types.LinkedAccount, error)
	GetByDiscordID(ctx context.Context, discordID snowflake.ID) (*types.LinkedAccount, error)
	UpsertLinkedAccount(ctx context.Context, account *types.LinkedAccount) error
	DeleteLinkedAccount(ctx context.Context, userID uuid.UUID) error
}

// AccountHandler handles linked account endpoints for the identity linking flow.
type AccountHandler struct {
	accounts AccountStore
	logger   *zap.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accounts AccountStore, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// GetAccount returns the linked identities of a user.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := uuid.Parse(req.Param("userId"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid userId")
	}

	account, err := h.accounts.GetByUserID(req.Context(), userID)
	if err != nil {
		if errors.Is(err, types.ErrLinkedAccountNotFound) {
			return writeError(w, http.StatusNotFound, err.Error())
		}

		h.logger.Error("Failed to get linked account", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	return writeJSON(w, http.StatusOK, account)
}

// FindAccount looks up a linked account by ?githubLogin= or ?discordId=.
// Exactly one of the two must be given.
func (h *AccountHandler) FindAccount(w http.ResponseWriter, req bunrouter.Request) error {
	query := req.URL.Query()
	login := query.Get("githubLogin")
	rawDiscordID := query.Get("discordId")

	var (
		account *types.LinkedAccount
		err     error
	)

	switch {
	case login != "" && rawDiscordID == "":
		account, err = h.accounts.GetByGitHubLogin(req.Context(), login)
	case rawDiscordID != "" && login == "":
		discordID, parseErr := snowflake.Parse(rawDiscordID)
		if parseErr != nil || discordID == 0 {
			return writeError(w, http.StatusBadRequest, "invalid discordId")
		}

		account, err = h.accounts.GetByDiscordID(req.Context(), discordID)
	default:
		return writeError(w, http.StatusBadRequest, "exactly one of githubLogin or discordId is required")
	}

	if err != nil {
		if errors.Is(err, types.ErrLinkedAccountNotFound) {
			return writeError(w, http.StatusNotFound, err.Error())
		}

		h.logger.Error("Failed to find linked account", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	return writeJSON(w, http.StatusOK, account)
}

// LinkAccount stores the GitHub and Discord identities of a user.
func (h *AccountHandler) LinkAccount(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := uuid.Parse(req.Param("userId"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid userId")
	}

	var body restTypes.LinkAccountRequest
	if err := decodeBody(req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	account := &types.LinkedAccount{
		UserID:      userID,
		GitHubLogin: body.GitHubLogin,
		DiscordID:   body.DiscordID,
	}

	if err := h.accounts.UpsertLinkedAccount(req.Context(), account); err != nil {
		h.logger.Error("Failed to link account", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	return writeJSON(w, http.StatusOK, account)
}

// UnlinkAccount removes the linked identities of a user.
func (h *AccountHandler) UnlinkAccount(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := uuid.Parse(req.Param("userId"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid userId")
	}

	if err := h.accounts.DeleteLinkedAccount(req.Context(), userID); err != nil {
		if errors.Is(err, types.ErrLinkedAccountNotFound) {
			return writeError(w, http.StatusNotFound, err.Error())
		}

		h.logger.Error("Failed to unlink account", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}
