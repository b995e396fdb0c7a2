package profile

import (
	"encoding/json"
	"fmt"

	"novabot/internal/domain"
)

// encodeValue validates a field value and returns its persisted form.
// Scalar fields take strings; preferences take a list or mapping and are
// persisted as JSON. Validation failures report ErrInvalidArgument before
// anything is written.
func encodeValue(field domain.ProfileField, value any) (string, error) {
	if field == domain.FieldPreferences {
		switch v := value.(type) {
		case []string, []any, map[string]any, map[string]string:
			data, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("encode preferences: %w", err)
			}
			return string(data), nil
		default:
			return "", fmt.Errorf("%w: preferences must be a list or mapping, got %T", domain.ErrInvalidArgument, value)
		}
	}

	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", domain.ErrInvalidArgument, field, value)
	}
	return s, nil
}

// decodePreferences parses the persisted preferences JSON. Corrupt data
// degrades to an empty list so a bad row never fails the whole read.
func decodePreferences(raw string) []string {
	if raw == "" {
		return nil
	}
	var prefs []string
	if err := json.Unmarshal([]byte(raw), &prefs); err == nil {
		return prefs
	}
	// Mapping form: keep values in a stable-enough order for display.
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err == nil {
		out := make([]string, 0, len(m))
		for k, v := range m {
			out = append(out, k+"="+v)
		}
		return out
	}
	return nil
}

// validateFields checks every field name up front so a multi-field update
// is all-or-nothing on validation.
func validateFields(updates map[domain.ProfileField]any) error {
	for field := range updates {
		if _, err := domain.ParseProfileField(string(field)); err != nil {
			return err
		}
	}
	return nil
}
