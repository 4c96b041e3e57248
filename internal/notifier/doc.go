// Package notifier delivers reminder notices and operator notifications
// through the active transport adapter.
//
// Sends are synchronous: the caller learns whether the message landed so it
// can record the notice as sent. Every attempt waits on a shared token
// bucket, runs under its own timeout, and failed attempts are retried with
// jittered exponential backoff.
//
// # Targets
//
// ResolveTarget walks three sources in order: the channel configured for the
// scope and item kind, the adapter's default channel for the scope, and the
// first channel the bot is allowed to post in.
package notifier
