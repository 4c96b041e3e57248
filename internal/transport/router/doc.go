// Package router turns inbound chat messages into command calls.
//
// Commands are registered as space separated routes ("list", "set tz") with
// optional root-level aliases. Matching requests run on a bounded worker pool
// behind a middleware chain that recovers panics, logs the request and
// applies the command timeout. Handlers return errors; the router hands them
// to an ErrorReply hook that turns them into user-facing text.
package router
