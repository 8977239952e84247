package cve

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Only the end is anchored: "xCVE-2015-4000" is accepted, "CVE-2015-4000-" is not.
var idPattern = regexp.MustCompile(`CVE-\d{4}-\d{4,7}$`)

// IsValid reports whether s ends with a CVE ID.
func IsValid(s string) bool {
	return idPattern.MatchString(s)
}

// Year returns the year component of a CVE ID.
func Year(id string) (int, error) {
	m := idPattern.FindString(id)
	if m == "" {
		return 0, xerrors.Errorf("invalid CVE-ID format: %s", id)
	}
	s := strings.Split(m, "-")
	year, err := strconv.Atoi(s[1])
	if err != nil {
		return 0, xerrors.Errorf("invalid CVE year %q: %w", s[1], err)
	}
	return year, nil
}
