// Package beanstalk provides the command primitive the climber uses to talk to
// beanstalkd-compatible work-queue servers.
//
// The protocol itself is not implemented here. Conn delegates the wire format
// to github.com/beanstalkd/go-beanstalk and only adds context deadlines,
// serialization of commands, and a uniform ErrNotFound for absent jobs and
// tubes. MemoryServer is an in-process server with the same observable
// behaviour (sequential ids, not-found replies, tube bookkeeping) and per
// command call counters, used by tests across the module.
//
// # Usage
//
//	conn, err := beanstalk.Dial(ctx, beanstalk.Options{Addr: "localhost:11300"})
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	body, err := conn.Peek(ctx, 42)
//	if beanstalk.IsNotFound(err) {
//		// job 42 does not exist
//	}
//
// # Thread Safety
//
// Conn and MemoryClient are safe for concurrent use; commands on one Conn are
// serialized.
package beanstalk
