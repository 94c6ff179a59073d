// Package ws streams the shared kernel debug log over WebSocket for
// live inspection. Delivery is best effort: the debuglog drops records
// for subscribers that fall behind.
package ws
