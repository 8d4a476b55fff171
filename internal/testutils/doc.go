// Package testutils provides helpers shared by tests across packages:
//
//   - RecordingSink captures the frames a handler streams, so tests can
//     assert on them or wait for a task to finish:
//
//     sink := testutils.NewRecordingSink()
//     err := handler.Process(ctx, payload, task.HandlerContext{Sink: sink})
//     frames := sink.Frames()
//
//   - TestSlogHandler captures log records for assertions on what was logged.
//
//   - DiscardLogger returns a logger that drops everything.
package testutils
