// Package resilience holds the process-wide protections put in front of
// external services: token buckets, a sliding-window limiter, per-source
// circuit breakers and an exponential-backoff retry helper.
//
// Registries are keyed by service or domain name and are meant to be shared by
// every concurrent pipeline run of the process.
package resilience
