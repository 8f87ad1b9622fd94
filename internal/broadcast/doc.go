// Package broadcast implements the telemetry fan-out pump.
//
// On every broadcast interval, and only while enabled, the Pump asks the telemetry source for one payload,
// serializes it once and queues it on every Open session through the gateway's non-blocking send.
// A session whose send fails is skipped and its missed-probe count advanced; the others are unaffected.
package broadcast
