package prefs

import (
	"strings"

	"github.com/goliatone/go-prefs/internal/hydrate"
)

// Decode resolves every preference under section and decodes the nested
// result into T. An empty section decodes the whole snapshot.
//
//	type Editor struct {
//		TabSize int `json:"tabSize"`
//	}
//	editor, err := prefs.Decode[Editor](svc, "editor")
func Decode[T any](s *Service, section string, opts ...CallOption) (T, error) {
	call := applyCallOptions(opts)
	ctx := hydrate.Context{
		Section:     section,
		ResourceURI: call.resourceURI,
	}
	if call.scope != nil {
		ctx.Scope = strings.ToLower(call.scope.String())
	}
	return hydrate.NewDecoder[T]().Decode(ctx, s.Preferences(opts...))
}
