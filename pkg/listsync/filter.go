package listsync

import "strings"

// AllCategories is the category sentinel meaning "no filter".
const AllCategories = ""

type FilterState struct {
	Search   string
	Category string
}

// normalize trims the search text; a blank search is no search.
func (f FilterState) normalize() FilterState {
	f.Search = strings.TrimSpace(f.Search)
	f.Category = strings.TrimSpace(f.Category)
	return f
}

// CategoryOption is one entry of the category selector.
type CategoryOption struct {
	Value    string
	Label    string
	Selected bool
}

// CategoryOptions builds the selector entries, "All Categories" first.
func CategoryOptions(names []string, selected string) []CategoryOption {
	opts := make([]CategoryOption, 0, len(names)+1)
	opts = append(opts, CategoryOption{Value: AllCategories, Label: "All Categories", Selected: selected == AllCategories})
	for _, n := range names {
		opts = append(opts, CategoryOption{Value: n, Label: n, Selected: n == selected})
	}
	return opts
}
