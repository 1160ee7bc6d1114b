// Package scheduler triggers named jobs on cron schedules in a fixed
// location. It wraps robfig/cron with the bot's logger, panic recovery and
// skip-if-still-running semantics.
package scheduler
