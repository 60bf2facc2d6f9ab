// Package filter selects jobs with CEL expressions.
//
// An expression sees these variables:
//
//	id     uint                 server-local job id
//	addr   string               server address
//	tube   string               tube holding the job
//	state  string               ready, delayed, reserved or buried
//	pri    uint                 priority, lower is more urgent
//	age    int                  seconds since the job was put
//	body   string               job payload
//	stats  map(string, string)  the raw stats-job reply
//
// Numeric literals compared with uint variables need the u suffix:
//
//	f, err := filter.Compile(`tube == "emails" && pri < 1024u`)
//
// Values come from the stats snapshot the job already holds. The body is
// peeked only by expressions that read it.
package filter
