// Package api handles incoming HTTP requests, request validation and
// response formatting for the dispatch service. It translates HTTP concerns
// into task runner operations: submitting tasks, adjusting per-user limits,
// resetting cached service instances and reporting runner statistics.
package api
