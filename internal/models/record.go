package models

// parentLinkField is the field the platform injects into flattened result
// lines so parent/child relationships survive the loss of query nesting.
const parentLinkField = "__parentId"

// Record is one decoded line of a bulk export result file. The record's
// position in the stream is the only ordering guarantee the platform makes.
type Record map[string]interface{}

// ParentID returns the parent-link value for records produced by a nested
// query, and false for top-level records.
func (r Record) ParentID() (string, bool) {
	v, ok := r[parentLinkField]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
