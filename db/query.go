package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"zinga/models"
)

// --- Query Structures ---

// QueryCondition represents a single condition like "path operator value".
type QueryCondition struct {
	Path          string      // gjson path into the record, e.g. "price" or "tags"
	Operator      string      // Base operator, lower case, without the -insensitive suffix
	ParsedValue   interface{} // string, float64, bool or nil
	ValueType     gjson.Type  // Type of ParsedValue
	IsInsensitive bool        // Set by the -insensitive suffix
	Original      string      // Condition as written, for error messages
}

// LogicalOperator represents "and" or "or".
type LogicalOperator string

const (
	LogicAnd LogicalOperator = "and"
	LogicOr  LogicalOperator = "or"
)

// ParsedQuery holds the sequence of conditions and logical operators.
// Logic[i] applies between Conditions[i] and Conditions[i+1]; evaluation is
// left to right without precedence.
type ParsedQuery struct {
	Conditions []QueryCondition
	Logic      []LogicalOperator
}

// --- Query Parsing ---

var validOperators = map[string]bool{
	"equals": true, "notequals": true,
	"greaterthan": true, "lessthan": true,
	"greaterthanorequals": true, "lessthanorequals": true,
	"contains": true, "startswith": true, "endswith": true,
	"exists": true,
}

// Operators that accept the -insensitive suffix.
var insensitiveOperators = map[string]bool{
	"equals": true, "notequals": true,
	"contains": true, "startswith": true, "endswith": true,
}

// ParseQuery parses the repeated q= parameters of a catalog request. Each part
// is either a condition or one of "and"/"or"; two conditions in a row are
// joined with "and".
func ParseQuery(queryParts []string) (*ParsedQuery, error) {
	if len(queryParts) == 0 {
		return nil, nil
	}

	parsed := &ParsedQuery{}
	expectingCondition := true
	for i, part := range queryParts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: part %d is empty", ErrInvalidQuery, i)
		}

		logic := LogicalOperator(strings.ToLower(part))
		if logic == LogicAnd || logic == LogicOr {
			if expectingCondition {
				return nil, fmt.Errorf("%w: unexpected '%s' at part %d", ErrInvalidQuery, part, i)
			}
			parsed.Logic = append(parsed.Logic, logic)
			expectingCondition = true
			continue
		}

		condition, err := parseSingleCondition(part)
		if err != nil {
			return nil, fmt.Errorf("%w: condition %d ('%s'): %v", ErrInvalidQuery, i, part, err)
		}
		if !expectingCondition {
			parsed.Logic = append(parsed.Logic, LogicAnd)
		}
		parsed.Conditions = append(parsed.Conditions, condition)
		expectingCondition = false
	}

	if expectingCondition {
		return nil, fmt.Errorf("%w: query must end with a condition, not a logical operator", ErrInvalidQuery)
	}
	return parsed, nil
}

// parseSingleCondition parses "path operator value" into a QueryCondition,
// determining the type of the value.
func parseSingleCondition(conditionStr string) (QueryCondition, error) {
	parts := strings.Fields(conditionStr)
	if len(parts) < 3 {
		return QueryCondition{}, errors.New("condition must be 'path operator value'")
	}

	path := parts[0]
	operator := strings.ToLower(parts[1])
	isInsensitive := false
	if base, ok := strings.CutSuffix(operator, "-insensitive"); ok {
		if !insensitiveOperators[base] {
			return QueryCondition{}, fmt.Errorf("operator '%s' has no case-insensitive form", base)
		}
		operator = base
		isInsensitive = true
	}
	if !validOperators[operator] {
		return QueryCondition{}, fmt.Errorf("invalid operator '%s'", parts[1])
	}

	// Everything after the operator is the value, spacing preserved.
	afterPath := strings.TrimSpace(conditionStr[strings.Index(conditionStr, parts[0])+len(parts[0]):])
	rawValue := strings.TrimSpace(afterPath[len(parts[1]):])

	var parsedValue interface{}
	var valueType gjson.Type

	// Order matters: numbers before booleans.
	switch {
	case len(rawValue) >= 2 && rawValue[0] == '"' && rawValue[len(rawValue)-1] == '"':
		parsedValue = rawValue[1 : len(rawValue)-1]
		valueType = gjson.String
	case rawValue == "null":
		parsedValue = nil
		valueType = gjson.Null
	default:
		if f, ok := tryParseFloat(rawValue); ok {
			parsedValue = f
			valueType = gjson.Number
		} else if b, ok := tryParseBool(rawValue); ok {
			parsedValue = b
			valueType = gjson.False
			if b {
				valueType = gjson.True
			}
		} else {
			parsedValue = rawValue
			valueType = gjson.String
		}
	}

	if operator == "exists" && valueType != gjson.True && valueType != gjson.False {
		return QueryCondition{}, errors.New("exists takes true or false")
	}

	return QueryCondition{
		Path:          path,
		Operator:      operator,
		ParsedValue:   parsedValue,
		ValueType:     valueType,
		IsInsensitive: isInsensitive,
		Original:      conditionStr,
	}, nil
}

// --- Query Evaluation ---

// EvaluateQuery reports whether the JSON record matches the query.
func EvaluateQuery(record []byte, query *ParsedQuery) (bool, error) {
	if query == nil || len(query.Conditions) == 0 {
		return true, nil
	}

	result, err := evaluateSingleCondition(record, query.Conditions[0])
	if err != nil {
		return false, fmt.Errorf("error evaluating condition '%s': %w", query.Conditions[0].Original, err)
	}
	for i, logic := range query.Logic {
		next, err := evaluateSingleCondition(record, query.Conditions[i+1])
		if err != nil {
			return false, fmt.Errorf("error evaluating condition '%s': %w", query.Conditions[i+1].Original, err)
		}
		switch logic {
		case LogicAnd:
			result = result && next
		case LogicOr:
			result = result || next
		}
	}
	return result, nil
}

func evaluateSingleCondition(record []byte, cond QueryCondition) (bool, error) {
	target := gjson.GetBytes(record, cond.Path)
	if cond.Operator == "exists" {
		return target.Exists() == cond.ParsedValue.(bool), nil
	}
	if !target.Exists() {
		// A record without the field only matches a negative comparison.
		return cond.Operator == "notequals", nil
	}
	return compareJSONValue(target, cond)
}

// compareJSONValue compares a gjson value from a record with the condition value.
func compareJSONValue(target gjson.Result, cond QueryCondition) (bool, error) {
	op := cond.Operator

	// contains on an array matches any element of the same type.
	if target.IsArray() {
		if op != "contains" {
			return false, fmt.Errorf("operator '%s' is invalid for array comparison", op)
		}
		found := false
		target.ForEach(func(_, element gjson.Result) bool {
			found = elementEquals(element, cond)
			return !found
		})
		return found, nil
	}

	if target.Type == gjson.Null || cond.ValueType == gjson.Null {
		bothNull := target.Type == gjson.Null && cond.ValueType == gjson.Null
		switch op {
		case "equals":
			return bothNull, nil
		case "notequals":
			return !bothNull, nil
		default:
			return false, fmt.Errorf("operator '%s' invalid for null comparison", op)
		}
	}

	switch target.Type {
	case gjson.String:
		if cond.ValueType != gjson.String {
			if op == "notequals" {
				return true, nil
			}
			return false, fmt.Errorf("type mismatch: cannot compare string with %s using operator '%s'", cond.ValueType, op)
		}
		targetStr, valStr := target.String(), cond.ParsedValue.(string)
		if cond.IsInsensitive {
			targetStr, valStr = strings.ToLower(targetStr), strings.ToLower(valStr)
		}
		switch op {
		case "equals":
			return targetStr == valStr, nil
		case "notequals":
			return targetStr != valStr, nil
		case "contains":
			return strings.Contains(targetStr, valStr), nil
		case "startswith":
			return strings.HasPrefix(targetStr, valStr), nil
		case "endswith":
			return strings.HasSuffix(targetStr, valStr), nil
		default:
			return false, fmt.Errorf("type mismatch: cannot apply numeric operator '%s' to string value", op)
		}

	case gjson.Number:
		if cond.ValueType != gjson.Number {
			if op == "notequals" {
				return true, nil
			}
			return false, fmt.Errorf("type mismatch: value '%v' is not a valid number for comparison with operator '%s'", cond.ParsedValue, op)
		}
		targetNum, valNum := target.Float(), cond.ParsedValue.(float64)
		switch op {
		case "equals":
			return targetNum == valNum, nil
		case "notequals":
			return targetNum != valNum, nil
		case "greaterthan":
			return targetNum > valNum, nil
		case "lessthan":
			return targetNum < valNum, nil
		case "greaterthanorequals":
			return targetNum >= valNum, nil
		case "lessthanorequals":
			return targetNum <= valNum, nil
		default:
			return false, fmt.Errorf("type mismatch: cannot apply string operator '%s' to numeric value", op)
		}

	case gjson.True, gjson.False:
		isBool := cond.ValueType == gjson.True || cond.ValueType == gjson.False
		if !isBool {
			if op == "notequals" {
				return true, nil
			}
			return false, fmt.Errorf("type mismatch: value '%v' is not a valid boolean for comparison with operator '%s'", cond.ParsedValue, op)
		}
		switch op {
		case "equals":
			return target.Bool() == cond.ParsedValue.(bool), nil
		case "notequals":
			return target.Bool() != cond.ParsedValue.(bool), nil
		default:
			return false, fmt.Errorf("operator '%s' is invalid for boolean comparison", op)
		}

	default:
		return false, fmt.Errorf("operator '%s' cannot directly compare JSON objects", op)
	}
}

func elementEquals(element gjson.Result, cond QueryCondition) bool {
	switch element.Type {
	case gjson.String:
		if cond.ValueType != gjson.String {
			return false
		}
		if cond.IsInsensitive {
			return strings.EqualFold(element.String(), cond.ParsedValue.(string))
		}
		return element.String() == cond.ParsedValue.(string)
	case gjson.Number:
		return cond.ValueType == gjson.Number && element.Float() == cond.ParsedValue.(float64)
	case gjson.True, gjson.False:
		return (cond.ValueType == gjson.True || cond.ValueType == gjson.False) && element.Bool() == cond.ParsedValue.(bool)
	case gjson.Null:
		return cond.ValueType == gjson.Null
	}
	return false
}

// --- Catalog Query ---

// CatalogCollections can be queried through QueryCatalog.
var CatalogCollections = []string{
	models.CollectionModules,
	models.CollectionPackages,
	models.CollectionPurchases,
	models.CollectionUsers,
}

// QueryParams holds all parameters for a catalog query.
type QueryParams struct {
	Collection string
	Query      []string // Raw q= parts
	SortBy     string   // gjson path; empty keeps document order
	Order      string   // "asc" (default) or "desc"
	Limit      int      // Default 20, max 100
	Offset     int
}

// Catalog page sizes.
const (
	DefaultCatalogLimit = 20
	MaxCatalogLimit     = 100
)

// QueryCatalog filters, sorts and paginates one collection of the live
// document. It returns the page and the number of matching records. Users
// never carry their password hash.
func (s *Store) QueryCatalog(ctx context.Context, params QueryParams) ([]json.RawMessage, int, error) {
	parsedQuery, err := ParseQuery(params.Query)
	if err != nil {
		return nil, 0, err
	}
	order := strings.ToLower(params.Order)
	if order != "" && order != "asc" && order != "desc" {
		return nil, 0, fmt.Errorf("%w: invalid order value '%s', expected 'asc' or 'desc'", ErrInvalidQuery, params.Order)
	}
	if params.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset must not be negative", ErrInvalidQuery)
	}

	doc, err := s.Load(ctx)
	if err != nil {
		return nil, 0, err
	}
	records, err := catalogRecords(doc, params.Collection)
	if err != nil {
		return nil, 0, err
	}

	matching := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		ok, err := EvaluateQuery(rec, parsedQuery)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		if ok {
			matching = append(matching, rec)
		}
	}

	if params.SortBy != "" {
		sortRecords(matching, params.SortBy, order == "desc")
	}
	return paginate(matching, params.Offset, params.Limit), len(matching), nil
}

func catalogRecords(doc *models.AppData, collection string) ([]json.RawMessage, error) {
	var (
		records []json.RawMessage
		err     error
	)
	switch collection {
	case models.CollectionModules:
		records, err = marshalEach(doc.Modules)
	case models.CollectionPackages:
		records, err = marshalEach(doc.Packages)
	case models.CollectionPurchases:
		records, err = marshalEach(doc.Purchases)
	case models.CollectionUsers:
		users := make([]models.User, len(doc.Users))
		for i, u := range doc.Users {
			u.Password = ""
			users[i] = u
		}
		records, err = marshalEach(users)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", collection, err)
	}
	return records, nil
}

func marshalEach[T any](items []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// sortRecords orders records by the value at path. Numbers compare
// numerically, everything else by its string form; records missing the field
// sort last.
func sortRecords(records []json.RawMessage, path string, desc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := gjson.GetBytes(records[i], path), gjson.GetBytes(records[j], path)
		if !a.Exists() || !b.Exists() {
			return a.Exists() && !b.Exists()
		}
		var less, greater bool
		if a.Type == gjson.Number && b.Type == gjson.Number {
			less, greater = a.Float() < b.Float(), a.Float() > b.Float()
		} else {
			less, greater = a.String() < b.String(), a.String() > b.String()
		}
		if desc {
			return greater
		}
		return less
	})
}

func paginate(records []json.RawMessage, offset, limit int) []json.RawMessage {
	if limit <= 0 {
		limit = DefaultCatalogLimit
	}
	if limit > MaxCatalogLimit {
		limit = MaxCatalogLimit
	}
	if offset >= len(records) {
		return []json.RawMessage{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// tryParseFloat attempts to parse a string as float64.
func tryParseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// tryParseBool attempts to parse a string as bool.
func tryParseBool(s string) (bool, bool) {
	b, err := strconv.ParseBool(s)
	return b, err == nil
}
