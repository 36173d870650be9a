package controllers

import (
	"net/http"
	"strconv"

	"github.com/haul-dl/haul/internal/app"
	"github.com/labstack/echo/v5"
)

type HistoryController struct {
	App *app.Context
}

// List returns archived outcomes, newest first. An optional limit query
// parameter caps the number of entries.
func (ctrl *HistoryController) List(c *echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	entries, err := ctrl.App.History.List(limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, historyViews(entries))
}

// ByClient returns every archived outcome recorded under one client
// identifier, newest first.
func (ctrl *HistoryController) ByClient(c *echo.Context) error {
	entries, err := ctrl.App.History.ByClient(c.Param("client_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, historyViews(entries))
}
