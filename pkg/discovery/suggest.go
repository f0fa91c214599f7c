package discovery

import (
	"slices"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

const maxSuggestions = 3

// suggest lists the segment values under parent that look like seg. Candidates are
// resolved without being attached to the tree.
func (d *Driver) suggest(seg uniqueid.Segment, parent *domain.Descriptor) []string {
	var candidates []string
	add := func(n *domain.Descriptor) {
		if last, ok := n.UniqueID().Last(); ok && last.Type == seg.Type && !slices.Contains(candidates, last.Value) {
			candidates = append(candidates, last.Value)
		}
	}
	for _, c := range parent.Children() {
		add(c)
	}
	for _, r := range d.resolvers {
		lister, ok := r.(ChildLister)
		if !ok {
			continue
		}
		leaves, containers := lister.ChildElements(parent)
		for _, element := range slices.Concat(leaves, containers) {
			for _, res := range d.resolvers {
				descs, err := res.ResolveElement(element, parent)
				if err != nil {
					continue
				}
				for _, desc := range descs {
					add(desc)
				}
			}
		}
	}
	return closest(seg.Value, candidates)
}

// closest ranks candidates by subsequence match, falling back to edit distance.
func closest(target string, candidates []string) []string {
	ranks := fuzzy.RankFindFold(target, candidates)
	sort.Sort(ranks)

	var out []string
	for _, r := range ranks {
		out = append(out, r.Target)
	}
	if len(out) == 0 {
		limit := max(2, len(target)/3)
		for _, c := range candidates {
			if fuzzy.LevenshteinDistance(target, c) <= limit {
				out = append(out, c)
			}
		}
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
