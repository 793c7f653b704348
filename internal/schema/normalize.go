package schema

import (
	"sort"

	"github.com/a3tai/mcp-pdf-filler/internal/fieldname"
)

// Normalize hands container geometry down to children that have none.
//
// Containers are the fields carrying rects, processed longest id first so a
// closer container distributes before a distant ancestor can. A container's
// candidates are its fillable descendants without rects, sorted by id. Rects
// are assigned one per child only when the counts match exactly; otherwise the
// container is skipped. Fields sharing an id are separate candidates, taken
// in schema order. The input schema is not modified.
func Normalize(s *Schema) *Schema {
	out := s.Clone()

	byID := make(map[string][]int, len(out.Fields))
	for i, f := range out.Fields {
		byID[f.ID] = append(byID[f.ID], i)
	}
	idx := fieldname.NewIndex(out.IDs())

	var containers []int
	for i, f := range out.Fields {
		if len(f.Rects) > 0 {
			containers = append(containers, i)
		}
	}
	sort.SliceStable(containers, func(a, b int) bool {
		return len(out.Fields[containers[a]].ID) > len(out.Fields[containers[b]].ID)
	})

	for _, ci := range containers {
		container := out.Fields[ci]

		var children []int
		for _, id := range idx.Descendants(container.ID) {
			for _, i := range byID[id] {
				child := out.Fields[i]
				if len(child.Rects) > 0 || !child.Kind.Fillable() {
					continue
				}
				children = append(children, i)
			}
		}

		if len(children) != len(container.Rects) {
			continue
		}
		for n, i := range children {
			out.Fields[i].Rects = []PlacedRect{container.Rects[n]}
		}
	}

	return out
}
