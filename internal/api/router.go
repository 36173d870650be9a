package api

import (
	"github.com/haul-dl/haul/internal/api/controllers"
	"github.com/haul-dl/haul/internal/app"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	jobsCtrl := &controllers.JobsController{App: app}
	historyCtrl := &controllers.HistoryController{App: app}
	eventsCtrl := &controllers.EventsController{App: app}

	// Active jobs
	e.POST("/api/jobs", jobsCtrl.Create)
	e.GET("/api/jobs", jobsCtrl.List)
	e.GET("/api/jobs/:client_id", jobsCtrl.Get)
	e.POST("/api/jobs/:client_id/suspend", jobsCtrl.Suspend)
	e.POST("/api/jobs/:client_id/resume", jobsCtrl.Resume)
	e.DELETE("/api/jobs/:client_id", jobsCtrl.Cancel)

	// Archived outcomes
	e.GET("/api/history", historyCtrl.List)
	e.GET("/api/history/:client_id", historyCtrl.ByClient)

	// Live event stream
	e.GET("/api/events", eventsCtrl.Stream)
}
