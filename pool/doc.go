// Package pool turns address specs into an ordered set of scanner
// connections.
//
// Specs accept host, host:port and beanstalk://host:port forms, possibly
// several per string separated by whitespace or commas. A URL with any
// other scheme fails with ErrInvalidScheme before any connection is opened.
// With no specs, the BEANSTALK_URL environment variable and then
// localhost:11300 are used.
//
// The order of Connections is fixed at construction and is the order in
// which sequential fan-out visits servers.
package pool
