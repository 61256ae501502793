// Package progress turns executor activity into progress events.
//
// Executors report through the Reporter interface: Report for native progress
// events carrying their own message and fraction, Phase for the coarse phase
// boundaries the subprocess fallback can observe. A Tracker clamps fractions
// so they never go backwards, estimates the remaining time from a moving
// average of recent completion rate, and hands events to the caller's
// Callback on a separate goroutine. A slow callback causes events to be
// dropped, and a panicking callback is logged; neither affects the operation.
package progress
