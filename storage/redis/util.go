// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import "strings"

// escapeMatch escapes the glob metacharacters understood by SCAN MATCH.
func escapeMatch(prefix string) string {
	if !strings.ContainsAny(prefix, `?*[]\`) {
		return prefix
	}

	var escaped strings.Builder
	for _, r := range prefix {
		switch r {
		case '?', '*', '[', ']', '\\':
			escaped.WriteByte('\\')
		}
		escaped.WriteRune(r)
	}
	return escaped.String()
}
