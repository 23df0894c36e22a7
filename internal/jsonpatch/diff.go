// Package jsonpatch computes RFC 6902 patches between plan documents for the audit trail.
package jsonpatch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"restructure-engine/internal/model"
)

// Fields never diffed: the audit trail itself and the store's version counter.
var skipped = []string{"audit", "version"}

// Arrays of generated values are replaced whole rather than diffed
// element by element.
var opaque = map[string]bool{
	"/scenarios": true,
	"/schedule":  true,
}

// Plans returns the patch turning before into after. A nil before is
// treated as an empty document.
func Plans(before, after *model.Plan) ([]model.PatchOp, error) {
	a, err := document(before)
	if err != nil {
		return nil, err
	}
	b, err := document(after)
	if err != nil {
		return nil, err
	}
	return Diff(a, b, ""), nil
}

func document(p *model.Plan) (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	if p == nil {
		return doc, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode plan %s: %w", p.ContractID, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", p.ContractID, err)
	}
	for _, k := range skipped {
		delete(doc, k)
	}
	return doc, nil
}

// Diff computes the patch transforming a into b. Both must be generic JSON
// values as produced by json.Unmarshal into interface{}; path is "" for the
// root. Object keys are visited in sorted order so equal inputs always give
// the same patch.
func Diff(a, b interface{}, path string) []model.PatchOp {
	if a == nil && b == nil {
		return nil
	}
	if a == nil || b == nil {
		return []model.PatchOp{replaceOp(path, b)}
	}

	aMap, aIsMap := a.(map[string]interface{})
	bMap, bIsMap := b.(map[string]interface{})
	if aIsMap && bIsMap {
		return diffObjects(aMap, bMap, path)
	}

	aArr, aIsArr := a.([]interface{})
	bArr, bIsArr := b.([]interface{})
	if aIsArr && bIsArr {
		if opaque[path] {
			if equal(aArr, bArr) {
				return nil
			}
			return []model.PatchOp{replaceOp(path, b)}
		}
		return diffArrays(aArr, bArr, path)
	}

	if aIsMap || bIsMap || aIsArr || bIsArr || a != b {
		return []model.PatchOp{replaceOp(path, b)}
	}
	return nil
}

func diffObjects(a, b map[string]interface{}, path string) []model.PatchOp {
	var ops []model.PatchOp

	for _, k := range sortedKeys(a) {
		if _, ok := b[k]; !ok {
			ops = append(ops, removeOp(path+"/"+escapeKey(k)))
		}
	}

	for _, k := range sortedKeys(b) {
		childPath := path + "/" + escapeKey(k)
		av, inA := a[k]
		if !inA {
			ops = append(ops, addOp(childPath, b[k]))
			continue
		}
		ops = append(ops, Diff(av, b[k], childPath)...)
	}
	return ops
}

func diffArrays(a, b []interface{}, path string) []model.PatchOp {
	var ops []model.PatchOp

	common := min(len(a), len(b))
	for i := 0; i < common; i++ {
		ops = append(ops, Diff(a[i], b[i], path+"/"+strconv.Itoa(i))...)
	}

	// Remove from the end so earlier indices stay valid.
	for i := len(a) - 1; i >= common; i-- {
		ops = append(ops, removeOp(path+"/"+strconv.Itoa(i)))
	}
	for i := common; i < len(b); i++ {
		ops = append(ops, addOp(path+"/"+strconv.Itoa(i), b[i]))
	}
	return ops
}

func equal(a, b []interface{}) bool {
	return len(Diff(a, b, "")) == 0
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func replaceOp(path string, value interface{}) model.PatchOp {
	return model.PatchOp{Op: "replace", Path: path, Value: value}
}

func addOp(path string, value interface{}) model.PatchOp {
	return model.PatchOp{Op: "add", Path: path, Value: value}
}

func removeOp(path string) model.PatchOp {
	return model.PatchOp{Op: "remove", Path: path}
}

// escapeKey escapes a JSON Pointer token per RFC 6901.
func escapeKey(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	s = strings.ReplaceAll(s, "/", "~1")
	return s
}
