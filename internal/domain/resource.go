package domain

import (
	"net/url"
	"strings"

	"github.com/segmentio/ksuid"
)

// Resource identifies one remote object within a job. Immutable after
// construction. Two resources with the same remote URL are the same
// resource, whatever their client identifiers say.
type Resource struct {
	ClientID string
	URL      *url.URL
	Filename string
}

// NewResource builds a resource for remote. A non-empty preferred filename
// is kept with path separators replaced; otherwise a unique name is
// generated so the resource always lands somewhere predictable.
func NewResource(clientID string, remote *url.URL, preferred string) *Resource {
	return &Resource{
		ClientID: clientID,
		URL:      remote,
		Filename: localFilename(preferred),
	}
}

func localFilename(preferred string) string {
	if preferred != "" {
		return strings.ReplaceAll(preferred, "/", "_")
	}
	return ksuid.New().String() + ".resource"
}

// Is reports whether u addresses this resource.
func (r *Resource) Is(u *url.URL) bool {
	return u != nil && r.URL.String() == u.String()
}
