// Package scheduler turns cron and interval schedules into engine tasks.
// It only triggers; execution, retries and overlap gating live in the task
// engine.
package scheduler
