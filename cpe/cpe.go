package cpe

import (
	"regexp"
	"strings"

	"golang.org/x/xerrors"
)

// Formatted string binding grammar, NISTIR 7695 section 6.2.
const (
	prefix   = "cpe:2.3:"
	unquoted = `[a-zA-Z0-9\-\._]`
	quoted   = `\\[\\\*\?!"#$%&'\(\)\+,/:;<=>@\[\]\^` + "`" + `\{\|}~]`
	avstring = `(((\?*|\*?)(` + unquoted + `|` + quoted + `)+(\?*|\*?))|[\*\-])`
	language = `(([a-zA-Z]{2,3}(-([a-zA-Z]{2}|[0-9]{3}))?)|[\*\-])`
	part     = `[aho\*\-]`

	// number of attributes after the "cpe:2.3:" prefix
	attributeCount = 11
)

var formattedString = regexp.MustCompile(
	`^cpe:2\.3:` + part + `(:` + avstring + `){5}(:` + language + `)(:` + avstring + `){4}$`,
)

var ErrInvalid = xerrors.New("invalid CPE 2.3 formatted string")

// Name holds the attributes of a CPE 2.3 formatted string exactly as they
// appear in the input, quoting and wildcards included.
type Name struct {
	Part      string
	Vendor    string
	Product   string
	Version   string
	Update    string
	Edition   string
	Language  string
	SWEdition string
	TargetSW  string
	TargetHW  string
	Other     string
}

// IsValid reports whether s conforms to the CPE 2.3 formatted string grammar.
func IsValid(s string) bool {
	return formattedString.MatchString(s)
}

// Parse splits a formatted string into its attributes. Colons escaped with a
// backslash belong to the attribute they appear in.
func Parse(s string) (Name, error) {
	if !IsValid(s) {
		return Name{}, xerrors.Errorf("%q: %w", s, ErrInvalid)
	}

	fields := split(strings.TrimPrefix(s, prefix))
	if len(fields) != attributeCount {
		return Name{}, xerrors.Errorf("%q has %d attributes: %w", s, len(fields), ErrInvalid)
	}

	return Name{
		Part:      fields[0],
		Vendor:    fields[1],
		Product:   fields[2],
		Version:   fields[3],
		Update:    fields[4],
		Edition:   fields[5],
		Language:  fields[6],
		SWEdition: fields[7],
		TargetSW:  fields[8],
		TargetHW:  fields[9],
		Other:     fields[10],
	}, nil
}

// String binds the name back to a formatted string without any normalization.
func (n Name) String() string {
	return prefix + strings.Join([]string{
		n.Part, n.Vendor, n.Product, n.Version, n.Update, n.Edition,
		n.Language, n.SWEdition, n.TargetSW, n.TargetHW, n.Other,
	}, ":")
}

func split(s string) []string {
	var fields []string
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
		case c == ':':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	return append(fields, b.String())
}
