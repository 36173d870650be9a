package controllers

import (
	"time"

	"github.com/haul-dl/haul/internal/domain"
	"github.com/haul-dl/haul/internal/history"
)

type ResourceRequest struct {
	ClientID string `json:"client_id,omitempty"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

type JobRequest struct {
	ClientID  string            `json:"client_id"`
	Name      string            `json:"name,omitempty"`
	Resources []ResourceRequest `json:"resources"`
}

type ResourceView struct {
	ClientID string  `json:"client_id"`
	URL      string  `json:"url"`
	Filename string  `json:"filename"`
	Fraction float64 `json:"fraction"`
}

type JobView struct {
	ID        string         `json:"id"`
	ClientID  string         `json:"client_id"`
	Name      string         `json:"name"`
	State     string         `json:"state"`
	Fraction  float64        `json:"fraction"`
	Resources []ResourceView `json:"resources"`
}

func jobView(job *domain.Job) JobView {
	resources := make([]ResourceView, 0, len(job.Resources))
	for _, r := range job.Resources {
		resources = append(resources, ResourceView{
			ClientID: r.ClientID,
			URL:      r.URL.String(),
			Filename: r.Filename,
			Fraction: job.FractionFor(r),
		})
	}

	return JobView{
		ID:        job.ID,
		ClientID:  job.ClientID,
		Name:      job.Name,
		State:     string(job.State()),
		Fraction:  job.Fraction(),
		Resources: resources,
	}
}

type HistoryView struct {
	ID         string                  `json:"id"`
	JobID      string                  `json:"job_id"`
	ClientID   string                  `json:"client_id"`
	Name       string                  `json:"name"`
	Outcome    string                  `json:"outcome"`
	Detail     string                  `json:"detail,omitempty"`
	Resources  []history.EntryResource `json:"resources"`
	FinishedAt time.Time               `json:"finished_at"`
}

func historyViews(entries []history.Entry) []HistoryView {
	views := make([]HistoryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, HistoryView{
			ID:         e.ID,
			JobID:      e.JobID,
			ClientID:   e.ClientID,
			Name:       e.Name,
			Outcome:    string(e.Outcome),
			Detail:     e.Detail,
			Resources:  e.Resources,
			FinishedAt: e.FinishedAt,
		})
	}
	return views
}

type EventView struct {
	Event    string  `json:"event"`
	ClientID string  `json:"client_id"`
	Resource string  `json:"resource,omitempty"`
	URL      string  `json:"url,omitempty"`
	Fraction float64 `json:"fraction"`
	State    string  `json:"state"`
	Error    string  `json:"error,omitempty"`
}
