package domain

import (
	"context"
	"fmt"
)

// ProfileField is one of the fixed, whitelisted profile columns.
// Keeping the set closed means an invalid field is caught at the edge,
// before any storage is touched.
type ProfileField string

const (
	FieldName        ProfileField = "name"
	FieldLocation    ProfileField = "location"
	FieldPreferences ProfileField = "preferences"
	FieldTone        ProfileField = "tone"
)

// ProfileFields lists every whitelisted field in schema order.
var ProfileFields = []ProfileField{FieldName, FieldLocation, FieldPreferences, FieldTone}

// ParseProfileField validates a field name against the whitelist.
func ParseProfileField(s string) (ProfileField, error) {
	f := ProfileField(s)
	for _, known := range ProfileFields {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q (allowed: name, location, preferences, tone)", ErrInvalidField, s)
}

// Profile holds the structured long-term facts for one user.
// Empty string / nil slice means the field is unset.
type Profile struct {
	Name        string   `json:"name,omitempty"`
	Location    string   `json:"location,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
	Tone        string   `json:"tone,omitempty"`
}

// Empty reports whether no field has a value.
func (p Profile) Empty() bool {
	return p.Name == "" && p.Location == "" && len(p.Preferences) == 0 && p.Tone == ""
}

// Field returns the stored value for a scalar field, or the comma-joined
// preferences for FieldPreferences.
func (p Profile) Field(f ProfileField) string {
	switch f {
	case FieldName:
		return p.Name
	case FieldLocation:
		return p.Location
	case FieldTone:
		return p.Tone
	case FieldPreferences:
		return joinComma(p.Preferences)
	}
	return ""
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}

// ProfileStore persists structured profile facts keyed by user ID.
// The store is a whitelist-guarded key-value upsert: it performs no
// conflict detection, that policy lives in the orchestrator.
type ProfileStore interface {
	// Get returns the stored profile, zero-valued when the user is unknown.
	// Corrupt persisted preferences degrade to an empty list, never an error.
	Get(ctx context.Context, userID string) (Profile, error)

	// Upsert creates the row if absent and updates exactly one field.
	// Returns ErrInvalidField for unwhitelisted fields and ErrInvalidArgument
	// for value/field type mismatches; nothing is written in either case.
	Upsert(ctx context.Context, userID string, field ProfileField, value any) error

	// UpsertMany validates every field name up front, then applies all
	// updates in one transaction.
	UpsertMany(ctx context.Context, userID string, updates map[ProfileField]any) error

	// Delete removes the row. Deleting an unknown user succeeds with found=false.
	Delete(ctx context.Context, userID string) (found bool, err error)

	Close() error
}
