package agent

import (
	"strings"

	"novabot/internal/domain"
)

// extractProfileUpdates scans a user message for explicitly stated
// profile facts. Only unambiguous first-person statements are
// extracted; anything else is left to the model's own understanding.
func extractProfileUpdates(message string) map[domain.ProfileField]string {
	updates := make(map[domain.ProfileField]string)

	if rest, ok := afterPhrase(message, "my name is"); ok {
		if fields := strings.Fields(rest); len(fields) > 0 {
			if name := strings.Trim(fields[0], ".,!?"); name != "" {
				updates[domain.FieldName] = name
			}
		}
	}

	if rest, ok := afterPhrase(message, "i live in"); ok {
		location := rest
		if i := strings.IndexByte(location, '.'); i >= 0 {
			location = location[:i]
		}
		if location = strings.TrimSpace(location); location != "" {
			updates[domain.FieldLocation] = location
		}
	}

	return updates
}

// afterPhrase returns the text following the last case-insensitive
// occurrence of phrase, preserving the message's original casing.
func afterPhrase(message, phrase string) (string, bool) {
	i := strings.LastIndex(strings.ToLower(message), phrase)
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(message[i+len(phrase):]), true
}
