// Package tube exposes tube metadata from stats-tube and list-tubes.
//
// Tubes are not cached across enumerations: List builds fresh Tube values
// each time. Attribute accessors refresh the stats snapshot on every call,
// except PauseTime which reuses the last snapshot unless asked to refresh.
package tube
