/*
Package observability provides execution listeners for monitoring a run.

It includes a composite listener fanning events out to several listeners,
structured logging of lifecycle events, Prometheus metrics, an execution
summary, and a recorder persisting results to a ports.ResultStore.
*/
package observability
