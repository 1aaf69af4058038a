package storage

import (
	"path"
	"time"

	"github.com/jittakal/kafbulk/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Router = (*PathRouter)(nil)

// PathRouter implements Hive-style partitioning for object keys:
//
//	<prefix>/<topic>/dt=YYYY-MM-DD/[hr=HH/]
//
// Dates are taken from the event time in UTC, not the processing time.
type PathRouter struct {
	prefix string
	hourly bool
}

// NewRouter creates a new path router. hourly adds an hr=HH level.
func NewRouter(prefix string, hourly bool) *PathRouter {
	return &PathRouter{prefix: prefix, hourly: hourly}
}

// Route returns the directory for records of topic with the given event time.
func (r *PathRouter) Route(topic string, eventTime time.Time) string {
	t := eventTime.UTC()
	parts := []string{r.prefix, topic, "dt=" + t.Format("2006-01-02")}
	if r.hourly {
		parts = append(parts, "hr="+t.Format("15"))
	}
	return path.Join(parts...) + "/"
}
