package prefs

import (
	"iter"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var overrideIdentifierPattern = regexp.MustCompile(`\[(.*)\]$`)

// OverridePreference is a preference name split into its base name and the
// override identifier it is scoped to.
type OverridePreference struct {
	PreferenceName     string
	OverrideIdentifier string
}

// OverrideService tracks registered override identifiers (typically language
// ids) and encodes the "[id].name" naming convention.
type OverrideService struct {
	mu          sync.RWMutex
	identifiers map[string]struct{}
	order       []string
	changed     Emitter[struct{}]
}

// NewOverrideService returns a service with no registered identifiers.
func NewOverrideService() *OverrideService {
	return &OverrideService{identifiers: map[string]struct{}{}}
}

// MarkLanguageOverride returns "[id]".
func MarkLanguageOverride(id string) string {
	return "[" + id + "]"
}

// IsOverrideKey reports whether key has the "[id]" shape.
func IsOverrideKey(key string) bool {
	return strings.HasPrefix(key, "[") && overrideIdentifierPattern.MatchString(key)
}

// OverridePreferenceName returns "[id].name".
func OverridePreferenceName(p OverridePreference) string {
	return MarkLanguageOverride(p.OverrideIdentifier) + "." + p.PreferenceName
}

// RegisterOverrideIdentifier adds id. The returned handle removes it again.
// When id is already registered nothing changes and NoopDisposable is
// returned.
func (s *OverrideService) RegisterOverrideIdentifier(id string) Disposable {
	s.mu.Lock()
	if _, ok := s.identifiers[id]; ok {
		s.mu.Unlock()
		return NoopDisposable
	}
	s.identifiers[id] = struct{}{}
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.changed.Fire(struct{}{})
	return NewDisposable(func() {
		if s.unregister(id) {
			s.changed.Fire(struct{}{})
		}
	})
}

func (s *OverrideService) unregister(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identifiers[id]; !ok {
		return false
	}
	delete(s.identifiers, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// OnSchemaChanged subscribes to identifier set changes.
func (s *OverrideService) OnSchemaChanged(fn func()) Disposable {
	return s.changed.Subscribe(func(struct{}) { fn() })
}

// Has reports whether id is registered.
func (s *OverrideService) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.identifiers[id]
	return ok
}

// Identifiers returns the registered identifiers in registration order.
func (s *OverrideService) Identifiers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// OverridePreferenceName returns "[id].name".
func (s *OverrideService) OverridePreferenceName(p OverridePreference) string {
	return OverridePreferenceName(p)
}

// OverriddenPreferenceName splits name into its override identifier and base
// name. The split happens at the first dot and the identifier must be
// registered.
func (s *OverrideService) OverriddenPreferenceName(name string) (OverridePreference, bool) {
	head, rest, ok := strings.Cut(name, ".")
	if !ok {
		return OverridePreference{}, false
	}
	match := overrideIdentifierPattern.FindStringSubmatch(head)
	if match == nil {
		return OverridePreference{}, false
	}
	id := match[1]
	if !s.Has(id) {
		return OverridePreference{}, false
	}
	return OverridePreference{PreferenceName: rest, OverrideIdentifier: id}, true
}

// ComputeOverridePatternPropertiesKey returns a pattern matching "[id]" for
// every registered identifier, or false when none are registered.
func (s *OverrideService) ComputeOverridePatternPropertiesKey() (string, bool) {
	ids := s.Identifiers()
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = regexp.QuoteMeta(id)
	}
	return `^\[(` + strings.Join(escaped, "|") + `)\]$`, true
}

// OverridePreferenceNames yields "[id].name" for every registered identifier.
// Each call returns a fresh sequence over the identifiers registered at the
// time of iteration.
func (s *OverrideService) OverridePreferenceNames(name string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, id := range s.Identifiers() {
			if !yield(OverridePreferenceName(OverridePreference{PreferenceName: name, OverrideIdentifier: id})) {
				return
			}
		}
	}
}
