package fieldname

import "sort"

// Reconcile adds leaf-name copies for qualified keys the document does not expose.
//
// For every key absent from available that contains a separator, the value is
// also written under the key's leaf name, unless values already has that leaf.
// Entries are never removed or overwritten, and keys already present in
// available are left alone. The input map is not modified.
func Reconcile[V any](values map[string]V, available NameSet) map[string]V {
	out := make(map[string]V, len(values))
	for k, v := range values {
		out[k] = v
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if available.Has(k) || !IsQualified(k) {
			continue
		}
		leaf := Leaf(k)
		if _, taken := values[leaf]; taken {
			continue
		}
		// two qualified keys may share a leaf; the lexically first keeps it
		if _, added := out[leaf]; added {
			continue
		}
		out[leaf] = values[k]
	}

	return out
}
