// Package session tracks authenticated users and their live transport
// connections. A user whose connections are all gone and who stays inactive
// past the configured timeout is expired, and the expire hook lets the
// owner drop per-user state such as cached service instances.
package session
