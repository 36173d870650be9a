package app

import (
	"github.com/haul-dl/haul/internal/downloads"
	"github.com/haul-dl/haul/internal/history"
	"github.com/haul-dl/haul/internal/infra/config"
	"github.com/haul-dl/haul/internal/infra/logger"
)

// Context holds the core environment and shared resources for haul.
// It acts as the "Single Source of Truth" for the application state.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Downloads *downloads.Service
	History   *history.Archive
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
