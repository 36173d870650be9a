package store

import (
	"fmt"
	"net/url"

	"github.com/haul-dl/haul/internal/domain"
)

// jobRecord is the serialized form of one active job
type jobRecord struct {
	ClientID  string           `json:"client_id"`
	Name      string           `json:"name,omitempty"`
	Resources []resourceRecord `json:"resources"`
}

type resourceRecord struct {
	ClientID string `json:"client_id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Mapper: record to domain Job
func (r *jobRecord) ToDomain() (*domain.Job, error) {
	resources := make([]*domain.Resource, 0, len(r.Resources))
	for _, rr := range r.Resources {
		u, err := url.Parse(rr.URL)
		if err != nil {
			return nil, fmt.Errorf("parse resource url %q: %w", rr.URL, err)
		}
		resources = append(resources, &domain.Resource{
			ClientID: rr.ClientID,
			URL:      u,
			Filename: rr.Filename,
		})
	}
	return domain.NewJob(r.ClientID, r.Name, resources), nil
}

// Mapper: domain Job to record
func (r *jobRecord) FromDomain(j *domain.Job) {
	r.ClientID = j.ClientID
	r.Name = j.Name
	r.Resources = make([]resourceRecord, 0, len(j.Resources))
	for _, res := range j.Resources {
		r.Resources = append(r.Resources, resourceRecord{
			ClientID: res.ClientID,
			URL:      res.URL.String(),
			Filename: res.Filename,
		})
	}
}
