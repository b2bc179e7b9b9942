package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	restTypes "github.com/robalyx/rolesync/internal/rest/types"
	"github.com/uptrace/bunrouter"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	return sonic.ConfigDefault.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) error {
	return writeJSON(w, status, restTypes.ErrorResponse{Error: message})
}

func decodeBody(req bunrouter.Request, v any) error {
	if err := sonic.ConfigDefault.NewDecoder(req.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

func snowflakeParam(req bunrouter.Request, name string) (snowflake.ID, error) {
	id, err := snowflake.Parse(req.Param(name))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}

	return id, nil
}

// historyLimit reads ?limit=n, clamped to [1, maxHistoryLimit].
func historyLimit(req bunrouter.Request) int {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}

	return min(limit, maxHistoryLimit)
}
