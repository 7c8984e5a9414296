// Package series defines the value objects that flow through one update
// cycle: samples parsed from the metering API, hourly buckets, aggregated
// statistic records and the resume state read back from the store.
//
// All types are plain values. Nothing in this package outlives a cycle
// except what the store persists.
package series
