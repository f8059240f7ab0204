package usage

import (
	"fmt"
	"time"
)

// Keys builds store keys under a configurable prefix.
// Daily:   {prefix}usage:{service}:{endpoint}:{YYYY-MM-DD}
// Monthly: {prefix}usage:monthly:{service}:{YYYY-MM}
type Keys struct {
	prefix string
}

// NewKeys creates a key builder.
func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

// Daily returns the key for a service+endpoint's record on the given day.
func (k Keys) Daily(service, endpoint string, day time.Time) string {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return fmt.Sprintf("%susage:%s:%s:%s", k.prefix, service, endpoint, DayOf(day))
}

// Monthly returns the key for a service's rollup in the given month.
func (k Keys) Monthly(service string, month time.Time) string {
	return fmt.Sprintf("%susage:monthly:%s:%s", k.prefix, service, MonthOf(month))
}

// AllPattern matches every governor key, daily and monthly.
func (k Keys) AllPattern() string {
	return k.prefix + "usage:*"
}
