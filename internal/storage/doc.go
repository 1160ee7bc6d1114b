// Package storage keeps an optional audit trail of subscription changes,
// reminder deliveries and broadcast runs.
//
// It is write-mostly: the subscriber registry is never rebuilt from it.
// The only read is the last broadcast run, shown in /help.
package storage
