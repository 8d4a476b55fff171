// Package logs implements log_service, which lets a connected client read,
// search and tail the server's log files. Files are addressed by friendly
// name ("application logs") and resolved through configuration, never by a
// client-supplied path.
package logs
