package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// responseOnlyKeys are stamped onto GET responses and must not be persisted
// when a client echoes the document back.
var responseOnlyKeys = []string{"lastLoaded", "success", "error"}

// Quarantined is a record set aside because it could not be decoded or failed validation.
type Quarantined struct {
	Collection string          `json:"collection"`
	Index      int             `json:"index"` // -1 when the whole collection value was unusable
	Raw        json.RawMessage `json:"raw"`
	Reason     string          `json:"reason"`
}

// InvalidRecordsError reports quarantined records where a strict decode was required.
type InvalidRecordsError struct {
	Records []Quarantined
}

func (e *InvalidRecordsError) Error() string {
	first := e.Records[0]
	if first.Index < 0 {
		return fmt.Sprintf("%d invalid record(s); %s: %s", len(e.Records), first.Collection, first.Reason)
	}
	return fmt.Sprintf("%d invalid record(s); %s[%d]: %s", len(e.Records), first.Collection, first.Index, first.Reason)
}

// DecodeAppData parses a document. Only a document that is not a JSON object
// is an error; individual malformed records are returned as quarantined and
// left out of the result.
func DecodeAppData(data []byte) (*AppData, []Quarantined, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, fmt.Errorf("decoding document: %w", err)
	}
	if top == nil {
		return nil, nil, errors.New("decoding document: document is null")
	}
	for _, k := range responseOnlyKeys {
		delete(top, k)
	}

	doc := &AppData{Auxiliary: make(map[string][]json.RawMessage)}
	var bad []Quarantined

	doc.Users, bad = decodeRecords[User](top, CollectionUsers, bad)
	doc.Modules, bad = decodeRecords[Module](top, CollectionModules, bad)
	doc.Packages, bad = decodeRecords[Package](top, CollectionPackages, bad)
	doc.Purchases, bad = decodeRecords[Purchase](top, CollectionPurchases, bad)

	for _, name := range AuxiliaryCollections {
		raw, ok := take(top, name)
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			bad = append(bad, Quarantined{Collection: name, Index: -1, Raw: raw, Reason: err.Error()})
			continue
		}
		doc.Auxiliary[name] = items
	}

	if raw, ok := take(top, "settings"); ok {
		if err := json.Unmarshal(raw, &doc.Settings); err != nil {
			bad = append(bad, Quarantined{Collection: "settings", Index: -1, Raw: raw, Reason: err.Error()})
		}
	}
	doc.LastSaved, bad = decodeStamp(top, "lastSaved", bad)
	doc.LastUpdated, bad = decodeStamp(top, "lastUpdated", bad)
	if raw, ok := take(top, "version"); ok {
		if err := json.Unmarshal(raw, &doc.Version); err != nil {
			bad = append(bad, Quarantined{Collection: "version", Index: -1, Raw: raw, Reason: err.Error()})
		}
	}

	if len(top) > 0 {
		doc.Extra = top
	}
	return doc, bad, nil
}

func decodeRecords[T any](top map[string]json.RawMessage, name string, bad []Quarantined) ([]T, []Quarantined) {
	raw, ok := take(top, name)
	if !ok {
		return nil, bad
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, append(bad, Quarantined{Collection: name, Index: -1, Raw: raw, Reason: err.Error()})
	}
	records := make([]T, 0, len(items))
	for i, item := range items {
		var rec T
		if err := json.Unmarshal(item, &rec); err != nil {
			bad = append(bad, Quarantined{Collection: name, Index: i, Raw: item, Reason: err.Error()})
			continue
		}
		if err := validate.Struct(rec); err != nil {
			bad = append(bad, Quarantined{Collection: name, Index: i, Raw: item, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, bad
}

// Validate re-checks the typed records of doc, for callers that changed
// them after decoding. Failing records are returned in Quarantined form.
func (d *AppData) Validate() []Quarantined {
	var bad []Quarantined
	bad = validateRecords(d.Users, CollectionUsers, bad)
	bad = validateRecords(d.Modules, CollectionModules, bad)
	bad = validateRecords(d.Packages, CollectionPackages, bad)
	bad = validateRecords(d.Purchases, CollectionPurchases, bad)
	return bad
}

func validateRecords[T any](records []T, name string, bad []Quarantined) []Quarantined {
	for i, rec := range records {
		if err := validate.Struct(rec); err != nil {
			raw, _ := json.Marshal(rec)
			bad = append(bad, Quarantined{Collection: name, Index: i, Raw: raw, Reason: err.Error()})
		}
	}
	return bad
}

func decodeStamp(top map[string]json.RawMessage, name string, bad []Quarantined) (*time.Time, []Quarantined) {
	raw, ok := take(top, name)
	if !ok {
		return nil, bad
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, append(bad, Quarantined{Collection: name, Index: -1, Raw: raw, Reason: err.Error()})
	}
	return &t, bad
}

// take removes key from top and returns its value unless it is absent or null.
func take(top map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := top[key]
	if !ok {
		return nil, false
	}
	delete(top, key)
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}
