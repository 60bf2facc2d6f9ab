// Package fanout applies one per-connection operation across a list of
// connections.
//
// A Strategy names the operation, for example scanning jobs or listing
// tubes. An Enumerable runs it either way:
//
//   - Seq: connection by connection in list order, breakable through the
//     enumerate package
//   - EachConcurrent: one goroutine per connection, no ordering between
//     connections and no early stop
//
// Each concurrent branch owns one connection; a connection is never scanned
// by two goroutines.
package fanout
