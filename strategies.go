package climber

import (
	"context"

	"github.com/zero-day-ai/climber/enumerate"
	"github.com/zero-day-ai/climber/fanout"
	"github.com/zero-day-ai/climber/job"
	"github.com/zero-day-ai/climber/scanner"
	"github.com/zero-day-ai/climber/tube"
)

// JobStrategy enumerates every job on a connection with the cached
// range scan.
var JobStrategy fanout.Strategy[*job.Job] = fanout.StrategyFunc[*job.Job]{
	Kind: "jobs",
	Fn:   (*scanner.Connection).Jobs,
}

// TubeStrategy enumerates every tube on a connection, as reported by
// list-tubes.
var TubeStrategy fanout.Strategy[*tube.Tube] = fanout.StrategyFunc[*tube.Tube]{
	Kind: "tubes",
	Fn:   scanTubes,
}

func scanTubes(conn *scanner.Connection) enumerate.Seq[*tube.Tube] {
	return func(ctx context.Context, yield func(*tube.Tube) bool) error {
		tubes, err := tube.List(ctx, conn.Client())
		if err != nil {
			return err
		}
		for _, t := range tubes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !yield(t) {
				return nil
			}
		}
		return nil
	}
}
