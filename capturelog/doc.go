/*
Package capturelog is the append-only capture log: one JSON encoded capture.Record per
line, in completion order.

A Log is safe for concurrent use. Each record is marshalled before the lock is taken and
written with a single Write, so lines from concurrent appends never interleave. Readers may
scan the file while it is being appended to; an unterminated final line is an append still
in progress and is skipped.
*/
package capturelog
