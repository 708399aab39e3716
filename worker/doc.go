/*
Package worker runs traced background loops that recover from panics and back off when
idle.

The harness keeps two of them: the capture log fsync loop and the gauge reporter. Both
run on a fixed interval through Every.
*/
package worker
