// Package telemetry provides the patient vitals sources the broadcast pump draws from.
//
// SyntheticSource fabricates a fixed ward of patients with a randomized heart rate, which is what
// the service broadcasts when no feed is configured. RedisSource reads the latest vitals from a
// Redis hash that an upstream collector maintains; its client is guarded by a gobreaker circuit
// breaker hook so an unreachable Redis fails fast instead of stalling every broadcast tick.
package telemetry
