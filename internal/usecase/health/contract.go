package health

import "context"

// DBPinger checks usage store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}
