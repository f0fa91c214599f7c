package discovery

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/tuchang/junit5/pkg/domain"
)

// FilterResult tells whether a test is kept and why.
type FilterResult struct {
	Included bool
	Reason   string
}

// Filter decides whether a test descriptor stays in the plan after discovery.
type Filter func(d *domain.Descriptor) FilterResult

// IncludeTags keeps tests carrying at least one of tags, directly or through an ancestor.
func IncludeTags(tags ...domain.Tag) Filter {
	return func(d *domain.Descriptor) FilterResult {
		for _, t := range d.AllTags() {
			if slices.Contains(tags, t) {
				return FilterResult{Included: true, Reason: fmt.Sprintf("tagged %q", t)}
			}
		}
		return FilterResult{Reason: fmt.Sprintf("not tagged with any of %v", tags)}
	}
}

// ExcludeTags drops tests carrying any of tags.
func ExcludeTags(tags ...domain.Tag) Filter {
	return func(d *domain.Descriptor) FilterResult {
		for _, t := range d.AllTags() {
			if slices.Contains(tags, t) {
				return FilterResult{Reason: fmt.Sprintf("tagged %q", t)}
			}
		}
		return FilterResult{Included: true}
	}
}

// ExcludeDisplayNames drops tests whose display name matches one of the patterns.
func ExcludeDisplayNames(patterns ...string) (Filter, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, domain.NewConfigurationError("filter", p, err)
		}
		res = append(res, re)
	}
	return func(d *domain.Descriptor) FilterResult {
		for _, re := range res {
			if re.MatchString(d.DisplayName()) {
				return FilterResult{Reason: fmt.Sprintf("display name matches %q", re)}
			}
		}
		return FilterResult{Included: true}
	}, nil
}

// ApplyFilters removes every test rejected by one of filters, then prunes the
// containers left without tests. It returns the removed tests.
func ApplyFilters(root *domain.Descriptor, filters ...Filter) []*domain.Descriptor {
	var excluded []*domain.Descriptor
	if len(filters) > 0 {
		for _, d := range root.Descendants() {
			if !d.IsTest() {
				continue
			}
			for _, f := range filters {
				if !f(d).Included {
					excluded = append(excluded, d)
					break
				}
			}
		}
		for _, d := range excluded {
			_ = d.RemoveFromHierarchy()
		}
	}
	root.Prune()
	return excluded
}
