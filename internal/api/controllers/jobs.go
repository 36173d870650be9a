package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/haul-dl/haul/internal/app"
	"github.com/haul-dl/haul/internal/domain"
	"github.com/haul-dl/haul/internal/downloads"
	"github.com/labstack/echo/v5"
)

type JobsController struct {
	App *app.Context
}

// Create enqueues a new job from the request body.
func (ctrl *JobsController) Create(c *echo.Context) error {
	var req JobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.ClientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}

	resources := make([]*domain.Resource, 0, len(req.Resources))
	for _, r := range req.Resources {
		u, err := url.Parse(r.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid resource url: %q", r.URL))
		}

		clientID := r.ClientID
		if clientID == "" {
			clientID = r.URL
		}
		resources = append(resources, domain.NewResource(clientID, u, r.Filename))
	}

	name := req.Name
	if name == "" {
		name = req.ClientID
	}

	job := domain.NewJob(req.ClientID, name, resources)

	if err := ctrl.App.Downloads.Enqueue(job); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicate):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrNoResources):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, downloads.ErrClosed):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		default:
			return err
		}
	}

	return c.JSON(http.StatusCreated, jobView(job))
}

// List returns every active job.
func (ctrl *JobsController) List(c *echo.Context) error {
	jobs := ctrl.App.Downloads.Jobs()

	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(job))
	}
	return c.JSON(http.StatusOK, views)
}

// Get returns one active job by its client identifier.
func (ctrl *JobsController) Get(c *echo.Context) error {
	job := ctrl.App.Downloads.Lookup(c.Param("client_id"))
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active job with that id")
	}
	return c.JSON(http.StatusOK, jobView(job))
}

// Suspend pauses every transfer of the job.
func (ctrl *JobsController) Suspend(c *echo.Context) error {
	job := ctrl.App.Downloads.Lookup(c.Param("client_id"))
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active job with that id")
	}

	ctrl.App.Downloads.Suspend(job)
	return c.NoContent(http.StatusNoContent)
}

// Resume restarts every transfer of the job.
func (ctrl *JobsController) Resume(c *echo.Context) error {
	job := ctrl.App.Downloads.Lookup(c.Param("client_id"))
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active job with that id")
	}

	ctrl.App.Downloads.Resume(job)
	return c.NoContent(http.StatusNoContent)
}

// Cancel aborts the job and removes it from the active set.
func (ctrl *JobsController) Cancel(c *echo.Context) error {
	job := ctrl.App.Downloads.Lookup(c.Param("client_id"))
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active job with that id")
	}

	ctrl.App.Downloads.Cancel(job)
	return c.NoContent(http.StatusNoContent)
}
