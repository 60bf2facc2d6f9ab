// Package job provides the Job value object: one work item on one queue
// server, identified by a server-local integer id.
//
// A Job is constructed from whichever reply first revealed it:
//
//   - FromInsert: a put reply (id only)
//   - FromPeek: a peek or reserve reply (id and body)
//   - FromStats: a stats-job reply (id and stats, no body)
//
// Missing pieces are fetched lazily. The body is fetched once and kept for
// the lifetime of the Job. Stats attributes follow the Freshness declared in
// Attributes: Live attributes are re-read on every accessor call, Cached
// attributes are served from the last snapshot.
//
// After Delete a Job is marked deleted; Exists then answers false without
// contacting the server.
package job
