// Package task is the in-process dispatch engine. Producers submit tasks
// through a TaskRunner; tasks pass per-user admission control, wait in one
// of two priority queues (interactive or background), and are pulled by a
// partitioned worker pool that hands them to the Dispatcher. The Dispatcher
// resolves a handler instance from the per-user InstanceCache and invokes it,
// isolating every failure to the task that caused it.
//
// Nothing in this package is durable: pending tasks live only in memory and
// are abandoned on shutdown.
package task
