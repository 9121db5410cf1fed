// Package resourcelock serializes access to scarce shared resources such as
// GPU encode slots. Each slot is a JSON record file naming the holder; the
// claim protocol runs under a flock so concurrent processes cannot race the
// inspect-remove-create sequence. Records left behind by dead processes are
// detected with a PID probe and reclaimed immediately.
package resourcelock
