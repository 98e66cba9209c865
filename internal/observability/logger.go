package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the global logger with app. Call it after the logging
// profile has been configured.
func InitLogger(app string) zerolog.Logger {
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ComponentLogger derives a child of the global logger tagged with the
// link identity and component name.
func ComponentLogger(linkID, component string) zerolog.Logger {
	return log.Logger.With().Str("link", linkID).Str("component", component).Logger()
}
