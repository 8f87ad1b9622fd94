// Package liveness implements the periodic keep-alive policy.
//
// On every check interval the Scheduler walks a registry snapshot of Open sessions and either
// asks for a probe or asks for eviction. It never touches a socket: both actions are delegated
// to an Actions implementation (the gateway) that only queues work, so one stuck peer cannot
// delay the tick for the others.
package liveness
