package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haul-dl/haul/internal/app"
	"github.com/haul-dl/haul/internal/events"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"
)

// progressEvery caps how often update frames reach one stream consumer.
const progressEvery = 200 * time.Millisecond

type EventsController struct {
	App *app.Context
}

// Stream pushes the live event feed to the client as server-sent events.
// Update frames beyond the per-connection rate are dropped, never queued;
// lifecycle frames always go through.
func (ctrl *EventsController) Stream(c *echo.Context) error {
	feed := make(chan events.Event, 64)
	cancel := ctrl.App.Downloads.Bus().SubscribeAll(func(ev events.Event) {
		select {
		case feed <- ev:
		default:
			// Consumer is behind, drop the frame
		}
	})
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	updates := rate.NewLimiter(rate.Every(progressEvery), 1)
	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			fmt.Fprint(res, ": ping\n\n")
			res.Flush()
		case ev := <-feed:
			if isUpdate(ev.Name) && !updates.Allow() {
				continue
			}

			payload, err := json.Marshal(eventView(ev))
			if err != nil {
				continue
			}
			fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Name, payload)
			res.Flush()
		}
	}
}

func isUpdate(name events.Name) bool {
	return name == events.JobUpdated || name == events.ResourceUpdated
}

func eventView(ev events.Event) EventView {
	view := EventView{
		Event:    string(ev.Name),
		Fraction: ev.Fraction,
		State:    string(ev.State),
	}
	if ev.Job != nil {
		view.ClientID = ev.Job.ClientID
	}
	if ev.Resource != nil {
		view.Resource = ev.Resource.ClientID
		view.URL = ev.Resource.URL.String()
	}
	if ev.Err != nil {
		view.Error = ev.Err.Error()
	}
	return view
}
