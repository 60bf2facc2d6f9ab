// Package climber crawls every job and tube on one or more beanstalkd
// servers.
//
// beanstalkd has no command that lists jobs. A Climber finds them by
// climbing job ids: it learns the highest id on a server by inserting a
// probe job into a private tube and deleting it, then walks ids downward,
// keeping every job it found so later scans only look at ids it has not
// seen and revalidate the ones it holds.
//
// # Core Concepts
//
//   - Connection: one server, its job cache and the range of ids already
//     climbed (package scanner)
//   - Pool: the ordered set of connections, one per address (package pool)
//   - Enumerable: a fan-out over every connection, run sequentially with
//     early stop or concurrently with total visitation (package fanout)
//   - Job and Tube: lazy views of server state (packages job and tube)
//
// # Getting Started
//
//	c, err := climber.New(ctx, climber.WithAddresses("queue-a", "beanstalk://queue-b:11301"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	// Stop at the first job in the emails tube.
//	out, err := fanout.Each(ctx, c.Jobs(), func(j *job.Job) enumerate.Control[uint64] {
//	    if t, _ := j.Tube(ctx); t == "emails" {
//	        return enumerate.Stop(j.ID())
//	    }
//	    return enumerate.Continue[uint64]()
//	})
//
//	// Delete every buried job, one goroutine per server.
//	err = c.Jobs().EachConcurrent(ctx, func(j *job.Job) error {
//	    if s, _ := j.State(ctx); s == "buried" {
//	        return j.Delete(ctx)
//	    }
//	    return nil
//	})
//
// # Filtering
//
// FindJobs and FindFirst select jobs with CEL expressions over the job's
// stats (see package filter):
//
//	jobs, err := c.FindJobs(ctx, `tube == "emails" && state == "buried"`)
//
// # Export
//
// Export writes a snapshot of every job to an audit.Sink and records the
// run. With a Redis sink, snapshots of jobs that disappeared since the
// previous run are pruned.
//
// # Configuration
//
// Settings can come from a climber.yaml file (WithConfigFile), with
// explicit options taking priority. Server addresses may also be discovered
// from etcd (WithDiscovery) or read from the BEANSTALK_URL environment
// variable.
//
// # Error Handling
//
// Construction failures are *Error values with a Kind such as
// KindConfiguration. Sentinels such as ErrJobNotFound and ErrInvalidScheme
// match with errors.Is through any wrapping.
package climber
