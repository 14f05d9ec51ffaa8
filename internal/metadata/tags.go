package metadata

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize trims whitespace and applies Unicode NFC so tags that differ only
// in composition compare equal.
func Normalize(tag string) string {
	return norm.NFC.String(strings.TrimSpace(tag))
}

// Missing returns the tags in remote that are not present in local, in
// remote order and without duplicates.
func Missing(local, remote []string) []string {
	have := make(map[string]struct{}, len(local))
	for _, t := range local {
		have[Normalize(t)] = struct{}{}
	}
	var out []string
	for _, t := range remote {
		n := Normalize(t)
		if n == "" {
			continue
		}
		if _, ok := have[n]; ok {
			continue
		}
		have[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Union returns local followed by the tags of remote it lacks.
func Union(local, remote []string) []string {
	out := make([]string, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local))
	for _, t := range local {
		n := Normalize(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return append(out, Missing(out, remote)...)
}
