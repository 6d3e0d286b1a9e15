package pipeline

import "strings"

// visionTriggers are matched as plain case-insensitive substrings.
var visionTriggers = []string{
	"visualize",
	"look around",
	"what do you see",
	"describe surroundings",
	"describe environment",
	"what's around",
	"scan environment",
	"analyze surroundings",
	"check surroundings",
}

// ShouldTriggerVision reports whether message asks the assistant to look
// at its surroundings.
func ShouldTriggerVision(message string) bool {
	lower := strings.ToLower(message)
	// typographic apostrophes from mobile keyboards
	lower = strings.ReplaceAll(lower, "’", "'")
	for _, t := range visionTriggers {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
