// Package monitor implements the diagnostic event bus.
//
// Every lifecycle transition in the engine (scene appear/disappear, view
// state add/update/remove) and every invariant violation is published here.
// Observers are held weakly: an observer nobody else references is skipped
// and pruned on the next delivery.
//
// Invariant violations go through Bus.ReportFatal. With at least one live
// observer they are delivered as events and execution continues. With no
// observers, debug builds panic and release builds (-tags release) only log.
package monitor
