// Package object implements the kernel object (dispatcher) layer.
//
// Every kernel object flavor embeds Base, which carries the koid, the
// explicit shared-ownership reference count, and the open-handle count.
// Waitable objects own a StateTracker, the level-triggered signal
// engine that wakes registered observers when the satisfied bitmask
// changes and fails fast when a watched signal can never be satisfied.
//
// Ownership discipline:
//   - Creation factories return an object holding one reference; the
//     caller owns it and either transfers it into a handle or releases.
//   - Retain/Release are safe from any goroutine. The final Release
//     runs the object's OnLastReference hook on whichever goroutine
//     performed it; hooks must not assume any lock is held and must
//     not re-enter the table/arena lock they may be called under.
package object
