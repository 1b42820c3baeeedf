package chat

import (
	"fmt"
	"unicode/utf16"
)

const (
	DefaultBotName   = "TuTiBot"
	DefaultBotAvatar = "🤖"
	DefaultChatID    = "1"

	// MaxAvatarUnits is the avatar input's maxLength, counted in UTF-16
	// code units the way browsers count it.
	MaxAvatarUnits = 2
)

const welcomeGreeting = "Hi! I'm TuTiBot. I follow every command and answer any question. How can I help?"

func chatName(n int) string {
	return fmt.Sprintf("Chat %d", n)
}

func newChatGreeting(botName string) string {
	return fmt.Sprintf("Hi! I'm %s. New chat created. How can I help?", botName)
}

func restartGreeting(botName string) string {
	return fmt.Sprintf("Hi! I'm %s. Chat restarted. How can I help?", botName)
}

// truncateUTF16 keeps the longest rune prefix of s that fits in n UTF-16
// code units. A surrogate pair is never split.
func truncateUTF16(s string, n int) string {
	units := 0
	for i, r := range s {
		units += utf16.RuneLen(r)
		if units > n {
			return s[:i]
		}
	}
	return s
}
