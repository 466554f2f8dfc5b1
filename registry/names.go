// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"strconv"
)

// GetUniqueProxyName returns a name for prefix that is unused in
// group. prefix itself is returned when free, unless alwaysAppend is
// set; otherwise the smallest positive integer suffix not in use is
// appended ("Sphere1", "Sphere2", ...). When every suffix up to the
// configured bound is taken the result is [ErrNameSpaceExhausted].
func (r *Registry) GetUniqueProxyName(group, prefix string, alwaysAppend bool) (string, error) {
	if group == "" || prefix == "" {
		r.logger.Error("GetUniqueProxyName called without a group or prefix", "group", group, "prefix", prefix)
		return "", fmt.Errorf("unique name for %q in group %q: %w", prefix, group, ErrInvalidArgument)
	}
	names := r.groups[group]
	if _, taken := names[prefix]; !taken && !alwaysAppend {
		return prefix, nil
	}
	for suffix := 1; suffix <= r.maxSuffix; suffix++ {
		candidate := prefix + strconv.Itoa(suffix)
		if _, taken := names[candidate]; !taken {
			return candidate, nil
		}
	}
	r.logger.Error("no unique proxy name available", "group", group, "prefix", prefix, "max_suffix", r.maxSuffix)
	return "", fmt.Errorf("unique name for %q in group %q (suffixes 1..%d taken): %w",
		prefix, group, r.maxSuffix, ErrNameSpaceExhausted)
}
