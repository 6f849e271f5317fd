package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bookline/bookline/internal/models"
)

// slotSelectionRegex matches an explicit slot reference like "slot 2" or "Slot #3".
var slotSelectionRegex = regexp.MustCompile(`(?i)\bslot\s*#?\s*(\d+)\b`)

// bareNumberRegex matches a standalone number anywhere in the message.
var bareNumberRegex = regexp.MustCompile(`\b(\d+)\b`)

// emailRegex is deliberately permissive; the NLU pass handles messier phrasings.
var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// renderSlotList formats offered slots as a numbered list, one per line.
func renderSlotList(slots []models.Slot) string {
	var sb strings.Builder
	for i, slot := range slots {
		fmt.Fprintf(&sb, "Slot %d: %s\n", i+1, slot.Label())
	}
	return strings.TrimRight(sb.String(), "\n")
}

// parseSlotSelection extracts a 1-based slot number from a user message.
// It prefers an explicit "slot N" reference and falls back to any bare
// number in the message. Returns 0 when no number is present.
func parseSlotSelection(text string) int {
	if m := slotSelectionRegex.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n
		}
	}
	if m := bareNumberRegex.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n
		}
	}
	return 0
}

// extractEmailAddress pulls the first email-shaped token from text,
// or returns "" when none is present.
func extractEmailAddress(text string) string {
	return emailRegex.FindString(text)
}

// isFarewell reports whether the message is one of the conversation-ending
// keywords. Matching is exact on the normalized message, so "thanks for
// the slot list" does not end the conversation.
func isFarewell(text string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.TrimRight(strings.TrimSpace(text), ".!"))) {
	case "thanks", "thank you", "quit", "bye", "goodbye":
		return true
	}
	return false
}
