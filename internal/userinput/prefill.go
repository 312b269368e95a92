package userinput

import (
	"errors"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/ai"
	"github.com/spigell/auto-apply/internal/utils"
)

// LoadPrefill reads field_id to answer defaults. A missing or malformed file yields no defaults.
func LoadPrefill(path string, logger *zap.Logger) map[string]string {
	defaults := map[string]string{}
	if strings.TrimSpace(path) == "" {
		return defaults
	}

	var payload map[string]any
	if err := utils.ReadJSON(path, &payload); err != nil {
		if !errors.Is(err, fs.ErrNotExist) && logger != nil {
			logger.Warn("ignoring prefilled answers", zap.String("path", path), zap.Error(err))
		}
		return defaults
	}

	for id, value := range payload {
		if answer := ai.CoerceString(value); answer != "" {
			defaults[id] = answer
		}
	}
	return defaults
}
