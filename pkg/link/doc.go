// Package link connects the MN application to a kernel stack running in
// another process.
package link

// The application (user part) and the kernel stack exchange frames over
// a packet transport which preserves frame boundaries (length prefixed
// stream or websocket messages).
//
// The application sends commands, each carrying a sequence number; the
// kernel stack replies with the same sequence number, in order. When a
// reply arrives for a later command, all earlier pending commands fail
// with ErrNoReply.
//
// The kernel stack sends events unsolicited: a sync event for every
// cycle tick, and stack events (NMT state changes, errors).
//
// Producer: kernel stack
// Consumer: MN application
