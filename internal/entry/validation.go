package entry

import (
	"fmt"
	"regexp"
	"strings"
)

const maxNameLength = 100

// Only select-like entities accept select_option.
var entityIDRegex = regexp.MustCompile(`^(select|input_select)\.[a-z0-9_]+$`)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// ValidateName checks an entry name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidEntry)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidEntry, maxNameLength)
	}
	return nil
}

// NormalizeEntities trims and validates entity IDs, dropping duplicates
// while keeping first-seen order. None of own, the entry's proxy entity
// IDs, may appear in the list.
func NormalizeEntities(entities []string, own ...string) ([]string, error) {
	out := make([]string, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	self := make(map[string]struct{}, len(own))
	for _, id := range own {
		if id != "" {
			self[id] = struct{}{}
		}
	}

	for _, raw := range entities {
		id := strings.TrimSpace(raw)
		if !entityIDRegex.MatchString(id) {
			return nil, fmt.Errorf("%w: %q is not a select or input_select entity", ErrInvalidEntry, raw)
		}
		if _, isSelf := self[id]; isSelf {
			return nil, fmt.Errorf("%w: %q is this entry's own entity", ErrInvalidEntry, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Slugify lowercases s and collapses every run of other characters to "_".
func Slugify(s string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(slug, "_")
}
