package junit5

import (
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/tuchang/junit5/pkg/discovery"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// DiscoveryRequest describes what to discover.
type DiscoveryRequest struct {
	// Selectors to resolve. No selectors selects every engine in full.
	Selectors []domain.Selector
	// Filters are applied after discovery, in addition to the launcher's own.
	Filters []discovery.Filter
	// Parameters override the launcher's configuration parameters.
	Parameters map[string]string
}

// NewRequest builds a request from textual selectors ("id:", "name:", "file:",
// "dir:") and tag names.
func NewRequest(selectors, includeTags, excludeTags []string) (DiscoveryRequest, error) {
	var req DiscoveryRequest
	for _, s := range selectors {
		sel, err := domain.ParseSelector(s)
		if err != nil {
			return DiscoveryRequest{}, err
		}
		req.Selectors = append(req.Selectors, sel)
	}

	include, err := domain.ParseTags(includeTags...)
	if err != nil {
		return DiscoveryRequest{}, domain.NewConfigurationError("request", "include tags", err)
	}
	exclude, err := domain.ParseTags(excludeTags...)
	if err != nil {
		return DiscoveryRequest{}, domain.NewConfigurationError("request", "exclude tags", err)
	}
	if len(include) > 0 {
		req.Filters = append(req.Filters, discovery.IncludeTags(include...))
	}
	if len(exclude) > 0 {
		req.Filters = append(req.Filters, discovery.ExcludeTags(exclude...))
	}
	return req, nil
}

// Plan is the result of discovery: one root per engine.
// A plan can be executed only once.
type Plan struct {
	Roots    []*domain.Descriptor
	Warnings []discovery.Warning
	Errors   []error
	// Filtered holds the tests removed by post-discovery filters.
	Filtered []*domain.Descriptor

	engines  map[string]TestEngine
	params   domain.MapParameters
	executed atomic.Bool
}

// Err joins the discovery errors of every engine.
func (p *Plan) Err() error {
	return errors.Join(p.Errors...)
}

// Find returns the descriptor with the given unique id.
func (p *Plan) Find(id uniqueid.UniqueID) (*domain.Descriptor, bool) {
	for _, root := range p.Roots {
		if d, ok := root.FindByUniqueID(id); ok {
			return d, true
		}
	}
	return nil, false
}

// Parameters returns the configuration parameters the plan executes with.
func (p *Plan) Parameters() domain.ConfigurationParameters {
	return p.params
}

func (p *Plan) count(match func(*domain.Descriptor) bool) int {
	n := 0
	for _, root := range p.Roots {
		_ = root.Walk(func(d *domain.Descriptor) error {
			if match(d) {
				n++
			}
			return nil
		})
	}
	return n
}

func (p *Plan) CountTests() int      { return p.count((*domain.Descriptor).IsTest) }
func (p *Plan) CountContainers() int { return p.count((*domain.Descriptor).IsContainer) }

// HasTests reports whether any engine contributed a test.
func (p *Plan) HasTests() bool {
	for _, root := range p.Roots {
		if root.HasTests() {
			return true
		}
	}
	return false
}

// Views captures every root as a serializable tree.
func (p *Plan) Views() []domain.DescriptorView {
	views := make([]domain.DescriptorView, len(p.Roots))
	for i, root := range p.Roots {
		views[i] = domain.View(root)
	}
	return views
}

type planJSON struct {
	Roots      []domain.DescriptorView `json:"roots"`
	Tests      int                     `json:"tests"`
	Containers int                     `json:"containers"`
	Warnings   []string                `json:"warnings,omitempty"`
	Errors     []string                `json:"errors,omitempty"`
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	out := planJSON{
		Roots:      p.Views(),
		Tests:      p.CountTests(),
		Containers: p.CountContainers(),
	}
	for _, w := range p.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	for _, err := range p.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return json.Marshal(out)
}
