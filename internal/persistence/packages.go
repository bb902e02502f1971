package persistence

import "strings"

// MergePackages collapses comma-separated package lists into one ordered list.
// Blank entries are dropped; duplicates are kept in order of appearance.
func MergePackages(lists ...string) []string {
	var packages []string
	for _, list := range lists {
		for _, p := range strings.Split(list, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			packages = append(packages, p)
		}
	}
	return packages
}
