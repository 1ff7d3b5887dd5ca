// Package audit buffers security events and hands them to a Sink off the
// request path.
//
// The package decides nothing about which events exist beyond the type
// constants; callers build events and the Dispatcher delivers them in order.
package audit
