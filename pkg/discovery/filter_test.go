package discovery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5/pkg/discovery"
	"github.com/tuchang/junit5/pkg/domain"
)

func TestApplyFilters(t *testing.T) {
	testCases := []struct {
		name     string
		filters  func(t *testing.T) []discovery.Filter
		expected []string
	}{
		{
			name:    "no filters only prunes",
			filters: func(*testing.T) []discovery.Filter { return nil },
			expected: []string{
				"[engine:fake]/[container:Outer]",
				"[engine:fake]/[container:Outer]/[test:first]",
				"[engine:fake]/[container:Outer]/[test:second]",
				"[engine:fake]/[container:Outer]/[container:Inner]",
				"[engine:fake]/[container:Outer]/[container:Inner]/[test:deep]",
				"[engine:fake]/[container:Other]",
				"[engine:fake]/[container:Other]/[test:alone]",
			},
		},
		{
			name:    "include inherited tag",
			filters: func(*testing.T) []discovery.Filter { return []discovery.Filter{discovery.IncludeTags("slow")} },
			expected: []string{
				"[engine:fake]/[container:Outer]",
				"[engine:fake]/[container:Outer]/[container:Inner]",
				"[engine:fake]/[container:Outer]/[container:Inner]/[test:deep]",
			},
		},
		{
			name:    "exclude tag",
			filters: func(*testing.T) []discovery.Filter { return []discovery.Filter{discovery.ExcludeTags("slow", "lonely")} },
			expected: []string{
				"[engine:fake]/[container:Outer]",
				"[engine:fake]/[container:Outer]/[test:first]",
				"[engine:fake]/[container:Outer]/[test:second]",
			},
		},
		{
			name: "exclude display names",
			filters: func(t *testing.T) []discovery.Filter {
				f, err := discovery.ExcludeDisplayNames("^s", "deep")
				require.NoError(t, err)
				return []discovery.Filter{f}
			},
			expected: []string{
				"[engine:fake]/[container:Outer]",
				"[engine:fake]/[container:Outer]/[test:first]",
				"[engine:fake]/[container:Other]",
				"[engine:fake]/[container:Other]/[test:alone]",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, root, driver := fixture(t)
			m.top[0].nested[0].tags = []domain.Tag{"slow"}
			m.top[1].tests[0].tags = []domain.Tag{"lonely"}
			m.top = append(m.top, container("Empty", nil))

			report := driver.Resolve(context.Background(), domain.SelectName("Outer"), domain.SelectName("Other"), domain.SelectName("Empty"))
			require.NoError(t, report.Err())
			require.Len(t, root.Children(), 3)

			discovery.ApplyFilters(root, tc.filters(t)...)
			assert.Equal(t, tc.expected, ids(root.Descendants()))
		})
	}
}

func TestExcludeDisplayNames_InvalidPattern(t *testing.T) {
	_, err := discovery.ExcludeDisplayNames("(")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
