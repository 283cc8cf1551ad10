package listsync

import (
	"slices"
	"strings"

	"questionforum/pkg/models"
)

// MaxSuggestions caps the tag suggestions shown under the input.
const MaxSuggestions = 5

// TagPicker is the selected-tags state of the tag input.
type TagPicker struct {
	tags []string
}

func NewTagPicker(initial []string) *TagPicker {
	p := &TagPicker{}
	for _, t := range initial {
		p.Add(t)
	}
	return p
}

// Add appends a trimmed tag. Blank tags, duplicates and tags past the
// limit are refused.
func (p *TagPicker) Add(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || len(p.tags) >= models.MaxTags || slices.Contains(p.tags, tag) {
		return false
	}
	p.tags = append(p.tags, tag)
	return true
}

func (p *TagPicker) Remove(tag string) {
	p.tags = slices.DeleteFunc(p.tags, func(t string) bool { return t == tag })
}

func (p *TagPicker) Tags() []string { return slices.Clone(p.tags) }

func (p *TagPicker) Full() bool { return len(p.tags) >= models.MaxTags }

// Suggest filters the known tags by a case-insensitive substring of input,
// leaving out tags already selected. Nothing is suggested for blank input.
func Suggest(input string, known, selected []string) []string {
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return nil
	}
	var out []string
	for _, t := range known {
		if !strings.Contains(strings.ToLower(t), needle) || slices.Contains(selected, t) {
			continue
		}
		out = append(out, t)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
