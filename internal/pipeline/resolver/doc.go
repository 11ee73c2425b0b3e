// Package resolver contains the dependency resolver core for stage-based
// pipelines. It inspects pipeline definitions, instantiates stages from the
// registry, and evaluates dependency readiness for the pipeline engine.
package resolver
