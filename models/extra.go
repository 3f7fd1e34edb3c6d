package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// declaredKeys caches the JSON keys a struct type declares, keyed by reflect.Type.
var declaredKeys sync.Map

func knownKeys(t reflect.Type) map[string]struct{} {
	if v, ok := declaredKeys.Load(t); ok {
		return v.(map[string]struct{})
	}
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = struct{}{}
	}
	declaredKeys.Store(t, keys)
	return keys
}

// splitExtra returns the keys of data that the struct type of v does not declare.
func splitExtra(data []byte, v any) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	known := knownKeys(reflect.TypeOf(v))
	var extra map[string]json.RawMessage
	for k, raw := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = raw
	}
	return extra, nil
}

// joinExtra marshals v and adds the extra keys it does not already carry.
func joinExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := all[k]; !ok {
			all[k] = raw
		}
	}
	return json.Marshal(all)
}
