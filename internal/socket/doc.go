// Package socket is the websocket transport of the dispatch service. Clients
// connect to /ws/user-session with a bearer token, send event frames that
// become tasks, and receive each task's streamed results on the same
// connection. The Hub implements task.SinkResolver so handlers can address a
// task's originating connection.
package socket
