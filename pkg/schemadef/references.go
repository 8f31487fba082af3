package schemadef

import (
	"github.com/schemaledger/schemaledger/pkg/types"
	"github.com/tidwall/gjson"
)

// Reference is a directed dependency extracted from a definition: the defining
// object depends on Target.
type Reference struct {
	Target     types.ObjectRef
	Dependency types.DependencyType
}

// ExtractReferences re-parses a serialized definition and returns every
// dependency it declares. Edges in the dependency graph are always recomputed
// from this function, never hand-maintained.
func ExtractReferences(data []byte) []Reference {
	doc := gjson.ParseBytes(data)
	objType := types.ObjectType(doc.Get("type").String())
	defaultNS := doc.Get("namespace").String()
	if defaultNS == "" {
		defaultNS = types.DefaultNamespace
	}

	var refs []Reference
	seen := make(map[types.ObjectRef]bool)
	add := func(r Reference) {
		if !r.Target.IsValid() || seen[r.Target] {
			return
		}
		seen[r.Target] = true
		refs = append(refs, r)
	}

	// Foreign keys: tables reference the tables their columns point at.
	doc.Get("spec.columns").ForEach(func(_, col gjson.Result) bool {
		ref := col.Get("references")
		if ref.Exists() {
			add(Reference{
				Target:     refAt(ref, types.ObjectTypeTable, defaultNS),
				Dependency: types.DependencyTypeReferences,
			})
		}
		return true
	})

	// Indexes depend on the table they index.
	if objType == types.ObjectTypeIndex {
		if tbl := doc.Get("spec.table"); tbl.Exists() {
			add(Reference{
				Target:     refAt(tbl, types.ObjectTypeTable, defaultNS),
				Dependency: types.DependencyTypeIndexes,
			})
		}
	}

	// Explicit reference lists on views, functions, and tables.
	doc.Get("spec.references").ForEach(func(_, ref gjson.Result) bool {
		dep := types.DependencyTypeReferences
		if objType == types.ObjectTypeFunction {
			dep = types.DependencyTypeCalls
		}
		t := types.ObjectType(ref.Get("type").String())
		if t == "" {
			t = types.ObjectTypeTable
		}
		add(Reference{
			Target:     refAt(ref, t, defaultNS),
			Dependency: dep,
		})
		return true
	})

	return refs
}

func refAt(r gjson.Result, t types.ObjectType, defaultNS string) types.ObjectRef {
	// A bare string names the target directly.
	if r.Type == gjson.String {
		return types.ObjectRef{Type: t, Namespace: defaultNS, Name: r.String()}
	}
	if rt := r.Get("type").String(); rt != "" {
		t = types.ObjectType(rt)
	}
	ns := r.Get("namespace").String()
	if ns == "" {
		ns = defaultNS
	}
	return types.ObjectRef{Type: t, Namespace: ns, Name: r.Get("name").String()}
}
