// Package reminder holds the bot's behaviour: the daily broadcast to every
// subscriber and the /start, /stop, /test and /help commands.
//
// A failed send is logged and counted. It never removes the subscriber and
// is never retried.
package reminder
