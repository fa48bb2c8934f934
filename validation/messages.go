package validation

import "strings"

// Messages lists the problems found while validating one value. Each
// message is prefixed with the path of the offending field.
type Messages []string

func (m Messages) Error() string {
	return strings.Join(m, "; ")
}

func (m *Messages) add(path, format string) {
	if path == "" {
		*m = append(*m, format)
		return
	}
	*m = append(*m, path+": "+format)
}
