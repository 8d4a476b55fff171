// Package service contains the task handlers the dispatch engine runs and
// the helpers they share.
//
// Every service is registered under an event name in a task.Registry. A
// handler instance is created per (user, event) pair and cached, so a
// service may keep per-user state between tasks, such as the active log
// tail of the log service.
//
// Payloads arrive as generic JSON objects. DecodePayload turns them into a
// typed request struct and validates it; handlers dispatch on the request's
// Task field the same way across services:
//
//	{"task": "read_logs", "filename": "application logs", "lines": 50}
//
// Results stream through the task's sink as chunk, data, status and error
// frames and every operation finishes with End.
package service
