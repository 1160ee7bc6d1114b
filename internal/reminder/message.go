package reminder

import (
	"fmt"
	"strings"
)

// DefaultMessage is sent when reminder.message is not configured.
const DefaultMessage = "🌅 Guten Morgen! 🌅\n\n" +
	"It's time for your daily meditation session.\n\n" +
	"🧘 Find a comfortable position\n" +
	"🌬️ Take deep breaths\n" +
	"💭 Clear your mind\n" +
	"⏱️ Spend 10-15 minutes in peace\n\n" +
	"Quiet the mind, and the soul will speak.\n\n" +
	"Enjoy your meditation! 🙏\n\n" +
	"I'm with you. O. <3"

const (
	stopReply = "You've been unsubscribed from daily meditation reminders.\n" +
		"Use /start to subscribe again."
	helpHeader = "🧘 Meditation Reminder Bot"
)

// scheduleLabel renders "08:00" or "08:00 (Europe/Berlin)".
func scheduleLabel(at, tz string) string {
	at = strings.TrimSpace(at)
	if tz = strings.TrimSpace(tz); tz != "" {
		return fmt.Sprintf("%s (%s)", at, tz)
	}
	return at
}

func startReply(schedule string) string {
	return "🧘 Welcome to Meditation Reminder Bot! 🧘\n\n" +
		"You'll receive a daily reminder at " + schedule + " to do your meditation.\n" +
		"Use /stop to unsubscribe from reminders."
}
