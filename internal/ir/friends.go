package ir

import "sort"

// NormalizeIDs returns ids sorted and without duplicates.
// The result is never nil so that empty sets serialize as [].
func NormalizeIDs(ids []RecordID) []RecordID {
	out := make([]RecordID, 0, len(ids))
	out = append(out, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

// ContainsID reports whether a sorted id set contains id.
func ContainsID(set []RecordID, id RecordID) bool {
	i := sort.Search(len(set), func(i int) bool { return set[i] >= id })
	return i < len(set) && set[i] == id
}

// UnionID returns set ∪ {id}. set must be sorted.
func UnionID(set []RecordID, id RecordID) []RecordID {
	if ContainsID(set, id) {
		return set
	}
	return NormalizeIDs(append(append([]RecordID(nil), set...), id))
}

// RemoveID returns set \ {id}. set must be sorted.
func RemoveID(set []RecordID, id RecordID) []RecordID {
	out := make([]RecordID, 0, len(set))
	for _, s := range set {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}

// IDsOf returns the sorted IDs of records, omitting exclude.
func IDsOf(records []Record, exclude RecordID) []RecordID {
	ids := make([]RecordID, 0, len(records))
	for _, r := range records {
		if r.ID != exclude {
			ids = append(ids, r.ID)
		}
	}
	return NormalizeIDs(ids)
}
