package permission

import (
	"sort"
	"strings"
)

// Index is an immutable membership set over permission keys. It is built once
// from a role's permission list and replaced wholesale when that list changes.
type Index struct {
	keys     map[string]struct{}
	byModule map[string]map[string]struct{}
}

func NewIndex(keys []string) *Index {
	idx := &Index{
		keys:     make(map[string]struct{}, len(keys)),
		byModule: make(map[string]map[string]struct{}),
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		idx.keys[key] = struct{}{}
		module, _ := ParseKey(key)
		set, ok := idx.byModule[module]
		if !ok {
			set = make(map[string]struct{})
			idx.byModule[module] = set
		}
		set[key] = struct{}{}
	}
	return idx
}

func (i *Index) Has(key string) bool {
	if i == nil {
		return false
	}
	_, ok := i.keys[key]
	return ok
}

func (i *Index) HasAny(keys ...string) bool {
	for _, k := range keys {
		if i.Has(k) {
			return true
		}
	}
	return false
}

func (i *Index) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !i.Has(k) {
			return false
		}
	}
	return true
}

// KeysForModule returns the sorted keys granted for module.
func (i *Index) KeysForModule(module string) []string {
	if i == nil {
		return []string{}
	}
	return sortedKeys(i.byModule[module])
}

func (i *Index) Keys() []string {
	if i == nil {
		return []string{}
	}
	return sortedKeys(i.keys)
}

func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.keys)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParseKey splits "module.action" on the last dot. A key without a dot is
// treated as a module with an empty action.
func ParseKey(key string) (module, action string) {
	pos := strings.LastIndex(key, ".")
	if pos < 0 {
		return key, ""
	}
	return key[:pos], key[pos+1:]
}

func Key(module, action string) string {
	return module + "." + action
}
