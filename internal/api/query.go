package api

import (
	"fmt"
	"net/url"
	"strconv"
)

// IntParam reads the named integer from q. A missing value yields def;
// anything unparsable or outside [lo, hi] is an error naming the parameter.
func IntParam(q url.Values, name string, lo, hi, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	case n < lo || n > hi:
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return n, nil
}
