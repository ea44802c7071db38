package core

import (
	"fmt"

	"github.com/wholebody/wbc/pkg/types"
)

// SortConstraintConfig groups configs by priority. Within a group the input order is kept.
// Empty priorities are dropped, so the index of a group is its effective rank and
// the declared priority numbers only matter by their relative order.
func SortConstraintConfig(configs []types.ConstraintConfig) ([][]types.ConstraintConfig, error) {
	if len(configs) == 0 {
		return nil, ErrEmptyConfig
	}

	maxPrio := 0
	for _, c := range configs {
		if c.Priority < 0 {
			return nil, fmt.Errorf("%w: constraint %s has negative priority %d", ErrInvalidConfig, c.Name, c.Priority)
		}
		if c.Priority > maxPrio {
			maxPrio = c.Priority
		}
	}

	buckets := make([][]types.ConstraintConfig, maxPrio+1)
	for _, c := range configs {
		buckets[c.Priority] = append(buckets[c.Priority], c.Clone())
	}

	sorted := make([][]types.ConstraintConfig, 0, len(buckets))
	for _, b := range buckets {
		if len(b) > 0 {
			sorted = append(sorted, b)
		}
	}
	return sorted, nil
}

// NConstraintVariablesPerPrio returns the summed task dimension of each priority group
func NConstraintVariablesPerPrio(configs []types.ConstraintConfig) ([]int, error) {
	sorted, err := SortConstraintConfig(configs)
	if err != nil {
		return nil, err
	}
	return countVariables(sorted), nil
}

func countVariables(sorted [][]types.ConstraintConfig) []int {
	counts := make([]int, len(sorted))
	for prio, group := range sorted {
		for _, c := range group {
			counts[prio] += c.NVariables()
		}
	}
	return counts
}
