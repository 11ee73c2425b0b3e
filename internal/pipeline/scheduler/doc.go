// Package scheduler turns resolver snapshots into runnable batches that
// respect dependency order plus runtime constraints such as concurrency
// limits, approval gates, and stages that demand exclusive execution. It is a
// thin layer the pipeline engine calls to decide which stages to run next
// without re-implementing filtering logic.
package scheduler
