package schemadef

import (
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChangedSpecPaths returns the top-level keys of spec that differ between the
// base and changed serialized definitions, in sorted order. A key present on
// one side only also counts as changed. Sub-element overlap between two
// divergent edits is decided on these sets.
func ChangedSpecPaths(base, changed []byte) []string {
	baseSpec := gjson.GetBytes(base, "spec")
	changedSpec := gjson.GetBytes(changed, "spec")

	keys := make(map[string]bool)
	baseSpec.ForEach(func(k, _ gjson.Result) bool {
		keys[k.String()] = true
		return true
	})
	changedSpec.ForEach(func(k, _ gjson.Result) bool {
		keys[k.String()] = true
		return true
	})

	var diff []string
	for k := range keys {
		a := baseSpec.Get(k)
		b := changedSpec.Get(k)
		if !jsonResultEqual(a, b) {
			diff = append(diff, k)
		}
	}

	// Collections of named sub-elements (columns, constraints) are compared
	// per element so that two additions to the same list can still be disjoint.
	for _, list := range []string{"columns", "constraints"} {
		if !containsStr(diff, list) {
			continue
		}
		diff = removeStr(diff, list)
		for name := range namedElements(baseSpec.Get(list), changedSpec.Get(list)) {
			a := namedElement(baseSpec.Get(list), name)
			b := namedElement(changedSpec.Get(list), name)
			if !jsonResultEqual(a, b) {
				diff = append(diff, list+"."+name)
			}
		}
	}

	sort.Strings(diff)
	return diff
}

// PathsOverlap reports whether two changed-path sets touch a shared
// sub-element.
func PathsOverlap(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	for _, p := range b {
		if set[p] {
			return true
		}
	}
	return false
}

// MergeDisjoint applies the changed paths of both sides onto the base and
// returns the combined serialized definition. Callers must have verified the
// path sets are disjoint.
func MergeDisjoint(base, source, target []byte, sourcePaths, targetPaths []string) ([]byte, error) {
	out := base
	var err error
	for _, apply := range []struct {
		doc   []byte
		paths []string
	}{{source, sourcePaths}, {target, targetPaths}} {
		for _, p := range apply.paths {
			out, err = applyPath(out, apply.doc, p)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// applyPath copies the value at path from doc onto out. Paths of the form
// "columns.<name>" address named elements inside a list and are applied by
// element, so additions from both sides accumulate.
func applyPath(out, doc []byte, path string) ([]byte, error) {
	for _, list := range []string{"columns", "constraints"} {
		prefix := list + "."
		if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
			continue
		}
		name := path[len(prefix):]
		v := namedElement(gjson.GetBytes(doc, "spec."+list), name)
		idx := namedElementIndex(gjson.GetBytes(out, "spec."+list), name)
		switch {
		case !v.Exists() && idx < 0:
			return out, nil
		case !v.Exists():
			return sjson.DeleteBytes(out, "spec."+list+"."+strconv.Itoa(idx))
		case idx < 0:
			return sjson.SetRawBytes(out, "spec."+list+".-1", []byte(v.Raw))
		default:
			return sjson.SetRawBytes(out, "spec."+list+"."+strconv.Itoa(idx), []byte(v.Raw))
		}
	}
	v := gjson.GetBytes(doc, "spec."+path)
	if !v.Exists() {
		return sjson.DeleteBytes(out, "spec."+path)
	}
	return sjson.SetRawBytes(out, "spec."+path, []byte(v.Raw))
}

func namedElementIndex(list gjson.Result, name string) int {
	idx := -1
	i := 0
	list.ForEach(func(_, el gjson.Result) bool {
		if el.Get("name").String() == name {
			idx = i
			return false
		}
		i++
		return true
	})
	return idx
}


// SemanticallyEqual reports whether two serialized definitions are behaviorally
// equivalent: identical canonical forms once cosmetic fields are stripped.
func SemanticallyEqual(a, b []byte) bool {
	na, errA := stripCosmetic(a)
	nb, errB := stripCosmetic(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(na) == string(nb)
}

func stripCosmetic(data []byte) ([]byte, error) {
	out, err := sjson.DeleteBytes(data, "description")
	if err != nil {
		return nil, err
	}
	out, err = sjson.DeleteBytes(out, "spec.comment")
	if err != nil {
		return nil, err
	}
	return NormalizeJSON(out)
}

func jsonResultEqual(a, b gjson.Result) bool {
	if a.Exists() != b.Exists() {
		return false
	}
	if !a.Exists() {
		return true
	}
	na, errA := NormalizeJSON([]byte(a.Raw))
	nb, errB := NormalizeJSON([]byte(b.Raw))
	if errA != nil || errB != nil {
		return a.Raw == b.Raw
	}
	return string(na) == string(nb)
}

// namedElements collects the names occurring in either list of {name: ...}
// objects.
func namedElements(lists ...gjson.Result) map[string]bool {
	names := make(map[string]bool)
	for _, list := range lists {
		list.ForEach(func(_, el gjson.Result) bool {
			if n := el.Get("name").String(); n != "" {
				names[n] = true
			}
			return true
		})
	}
	return names
}

func namedElement(list gjson.Result, name string) gjson.Result {
	var found gjson.Result
	list.ForEach(func(_, el gjson.Result) bool {
		if el.Get("name").String() == name {
			found = el
			return false
		}
		return true
	})
	return found
}

func containsStr(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

func removeStr(s []string, v string) []string {
	out := s[:0]
	for _, e := range s {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}
