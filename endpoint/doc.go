// Package endpoint holds the device contexts that own every handle a role
// uses: the telemetry cycle, the command switch loop and the collector.
//
// Each context runs strictly sequentially on the calling goroutine and
// releases its hardware and session through one deferred, run-once cleanup
// regardless of how the run ends.
package endpoint
