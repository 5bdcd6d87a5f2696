package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/secomp2025/cardgolf/models"
)

// Message is the text posted with a new contest.
func Message(cards []models.Card, hashtag string, window time.Duration) string {
	var b strings.Builder
	b.WriteString("Can you make both of these cards show up in a Scryfall search without using 'or'?\n")
	for _, c := range cards {
		fmt.Fprintf(&b, "• %s: %s\n", c.Name, c.CanonicalURL)
	}
	fmt.Fprintf(&b, "Respond with a Scryfall URL and the %s hash tag in the next %s to enter!", hashtag, windowText(window))
	return b.String()
}

func windowText(window time.Duration) string {
	hours := int(window.Round(time.Hour) / time.Hour)
	if hours == 1 {
		return "hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
