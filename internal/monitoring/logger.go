// Package monitoring routes filter diagnostics (resampling events, likelihood
// underflow, run profiling) to one replaceable sink.
package monitoring

import "log"

// Logf receives every diagnostic line of the filter and the demo.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the diagnostic sink. nil discards diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = discard
	}
	Logf = f
}

func discard(string, ...interface{}) {}
