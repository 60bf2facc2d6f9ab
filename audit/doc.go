// Package audit exports job snapshots to external storage.
//
// A Sink receives one job.Snapshot per job found during an export run and a
// Run summary once the run ends. RedisSink is the provided implementation.
//
// # Redis Key Schema
//
//   - <prefix>:<addr>:job:<id> - Hash with id, addr, run_id, body, stats
//     (JSON) and captured_at
//   - <prefix>:<addr>:jobs - Sorted set of job ids scored by id
//   - <prefix>:servers - Set of server addresses seen
//   - <prefix>:run:<run_id> - String with the JSON run summary
//   - <prefix>:runs - Pub/Sub channel receiving each run summary
//
// The prefix defaults to "climber". Job hashes expire after RedisOptions.TTL
// when one is set; Prune removes ids that an export no longer found.
package audit
