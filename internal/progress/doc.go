// Package progress provides the tracker handles workers report through, the
// locked aggregate the live dashboard renders from, and a non-blocking hub
// that fans events out to pluggable sinks such as Prometheus metrics or the
// run history store.
package progress
