package job

import (
	"fmt"
	"strconv"
	"time"
)

// Freshness declares how an attribute accessor sources its value.
type Freshness int

const (
	// Live attributes are re-read from the server on every access.
	Live Freshness = iota

	// Cached attributes are served from the stats snapshot once one exists.
	Cached
)

// String returns the freshness name.
func (f Freshness) String() string {
	switch f {
	case Live:
		return "live"
	case Cached:
		return "cached"
	default:
		return "unknown"
	}
}

// Stats attribute names reported by stats-job.
const (
	AttrAge      = "age"
	AttrBuries   = "buries"
	AttrDelay    = "delay"
	AttrKicks    = "kicks"
	AttrPriority = "pri"
	AttrReleases = "releases"
	AttrReserves = "reserves"
	AttrState    = "state"
	AttrTimeLeft = "time-left"
	AttrTimeouts = "timeouts"
	AttrTTR      = "ttr"
	AttrTube     = "tube"
)

// Attributes maps every exposed stats attribute to its freshness. A job's
// tube and ttr are fixed when it is put; everything else moves as workers
// reserve, release, bury and kick it.
var Attributes = map[string]Freshness{
	AttrAge:      Live,
	AttrBuries:   Live,
	AttrDelay:    Live,
	AttrKicks:    Live,
	AttrPriority: Live,
	AttrReleases: Live,
	AttrReserves: Live,
	AttrState:    Live,
	AttrTimeLeft: Live,
	AttrTimeouts: Live,
	AttrTTR:      Cached,
	AttrTube:     Cached,
}

// Stats is a stats-job snapshot without the id field.
type Stats map[string]string

// Uint returns a numeric attribute.
func (s Stats) Uint(name string) (uint64, error) {
	v, ok := s[name]
	if !ok {
		return 0, fmt.Errorf("stats attribute %q missing", name)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stats attribute %q: %w", name, err)
	}
	return n, nil
}

// Seconds returns a numeric attribute expressed in seconds as a duration.
func (s Stats) Seconds(name string) (time.Duration, error) {
	n, err := s.Uint(name)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func (s Stats) clone() Stats {
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
