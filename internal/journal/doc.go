// Package journal records every annotation attempt in a SQLite database.
//
// The journal is an audit trail, not the source of truth for scheduling: the
// priority table file is. It also carries the invalid-response strike
// counters and the perceptual-hash cache used to skip duplicate images.
package journal
