// Package engine ties the pipeline resolver and scheduler together. It
// exposes a persistence-backed engine that can start new pipeline runs,
// resume existing ones, and incrementally update scheduler decisions as
// stages complete, fail, or stop to ask for input. The Run entrypoint drives
// whole batches to completion while recording history and emitting events.
package engine
