package db

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// --- Parsing Tests ---

func TestParseSingleCondition(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expectErr   bool
		expected    QueryCondition
		errContains string
	}{
		{
			name:  "Valid: quoted string",
			input: `title equals "Alphabet Adventure"`,
			expected: QueryCondition{
				Path: "title", Operator: "equals", ParsedValue: "Alphabet Adventure", ValueType: gjson.String, Original: `title equals "Alphabet Adventure"`,
			},
		},
		{
			name:  "Valid: numeric value",
			input: `price greaterThan 9.5`,
			expected: QueryCondition{
				Path: "price", Operator: "greaterthan", ParsedValue: 9.5, ValueType: gjson.Number, Original: `price greaterThan 9.5`,
			},
		},
		{
			name:  "Valid: boolean value",
			input: `isActive equals true`,
			expected: QueryCondition{
				Path: "isActive", Operator: "equals", ParsedValue: true, ValueType: gjson.True, Original: `isActive equals true`,
			},
		},
		{
			name:  "Valid: null value",
			input: `confirmedAt equals null`,
			expected: QueryCondition{
				Path: "confirmedAt", Operator: "equals", ParsedValue: nil, ValueType: gjson.Null, Original: `confirmedAt equals null`,
			},
		},
		{
			name:  "Valid: unquoted string",
			input: `status equals pending`,
			expected: QueryCondition{
				Path: "status", Operator: "equals", ParsedValue: "pending", ValueType: gjson.String, Original: `status equals pending`,
			},
		},
		{
			name:  "Valid: case-insensitive operator",
			input: `category equals-insensitive "language"`,
			expected: QueryCondition{
				Path: "category", Operator: "equals", ParsedValue: "language", ValueType: gjson.String, IsInsensitive: true, Original: `category equals-insensitive "language"`,
			},
		},
		{
			name:  "Valid: exists",
			input: `videoUrl exists false`,
			expected: QueryCondition{
				Path: "videoUrl", Operator: "exists", ParsedValue: false, ValueType: gjson.False, Original: `videoUrl exists false`,
			},
		},
		{name: "Invalid: missing value", input: `price greaterThan`, expectErr: true, errContains: "path operator value"},
		{name: "Invalid: unknown operator", input: `price biggerThan 3`, expectErr: true, errContains: "invalid operator"},
		{name: "Invalid: insensitive numeric", input: `price greaterthan-insensitive 3`, expectErr: true, errContains: "no case-insensitive form"},
		{name: "Invalid: exists needs bool", input: `price exists 3`, expectErr: true, errContains: "exists takes true or false"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cond, err := parseSingleCondition(tc.input)
			if tc.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cond)
		})
	}
}

func TestParseQuery(t *testing.T) {
	testCases := []struct {
		name          string
		parts         []string
		expectErr     bool
		numConditions int
		logic         []LogicalOperator
	}{
		{name: "Empty", parts: nil},
		{name: "Single", parts: []string{`price lessThan 10`}, numConditions: 1},
		{name: "Explicit or", parts: []string{`price lessThan 10`, "OR", `isActive equals false`}, numConditions: 2, logic: []LogicalOperator{LogicOr}},
		{name: "Implicit and", parts: []string{`price lessThan 10`, `isActive equals true`}, numConditions: 2, logic: []LogicalOperator{LogicAnd}},
		{name: "Leading operator", parts: []string{"and", `price lessThan 10`}, expectErr: true},
		{name: "Trailing operator", parts: []string{`price lessThan 10`, "or"}, expectErr: true},
		{name: "Double operator", parts: []string{`price lessThan 10`, "or", "and", `price equals 1`}, expectErr: true},
		{name: "Empty part", parts: []string{"  "}, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseQuery(tc.parts)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
			if tc.numConditions == 0 {
				assert.Nil(t, parsed)
				return
			}
			assert.Len(t, parsed.Conditions, tc.numConditions)
			assert.Equal(t, tc.logic, parsed.Logic)
		})
	}
}

// --- Evaluation Tests ---

func TestEvaluateSingleCondition(t *testing.T) {
	testCases := []struct {
		name        string
		record      string
		condition   string
		expectMatch bool
		expectErr   bool
		errContains string
	}{
		// --- String Comparisons ---
		{name: "String equals: match", record: `{"title": "Counting"}`, condition: `title equals "Counting"`, expectMatch: true},
		{name: "String equals: no match", record: `{"title": "Counting"}`, condition: `title equals "Letters"`},
		{name: "String equals insensitive", record: `{"category": "Language"}`, condition: `category equals-insensitive "language"`, expectMatch: true},
		{name: "String notEquals: match", record: `{"title": "Counting"}`, condition: `title notEquals "Letters"`, expectMatch: true},
		{name: "String contains", record: `{"description": "Sing along with Kiki"}`, condition: `description contains "along"`, expectMatch: true},
		{name: "String contains insensitive", record: `{"description": "Sing along with Kiki"}`, condition: `description contains-insensitive "KIKI"`, expectMatch: true},
		{name: "String startsWith", record: `{"id": "module-counting"}`, condition: `id startsWith "module-"`, expectMatch: true},
		{name: "String endsWith: no match", record: `{"videoUrl": "/v/a.mp4"}`, condition: `videoUrl endsWith ".webm"`},
		{name: "String numeric op: error", record: `{"price": "10"}`, condition: `price greaterThan 5`, expectErr: true, errContains: "type mismatch: cannot compare string"},

		// --- Numeric Comparisons ---
		{name: "Number equals", record: `{"price": 9.99}`, condition: `price equals 9.99`, expectMatch: true},
		{name: "Number greaterThan: no match", record: `{"price": 9.99}`, condition: `price greaterThan 9.99`},
		{name: "Number greaterThanOrEquals", record: `{"price": 9.99}`, condition: `price greaterThanOrEquals 9.99`, expectMatch: true},
		{name: "Number lessThan", record: `{"price": 9.99}`, condition: `price lessThan 10`, expectMatch: true},
		{name: "Number lessThanOrEquals: no match", record: `{"price": 12.99}`, condition: `price lessThanOrEquals 10`},
		{name: "Number invalid value: error", record: `{"price": 9.99}`, condition: `price equals cheap`, expectErr: true, errContains: "is not a valid number"},
		{name: "Number string op: error", record: `{"price": 9.99}`, condition: `price contains 9`, expectErr: true, errContains: "cannot apply string operator"},

		// --- Boolean Comparisons ---
		{name: "Boolean equals", record: `{"isActive": true}`, condition: `isActive equals true`, expectMatch: true},
		{name: "Boolean notEquals", record: `{"isActive": true}`, condition: `isActive notEquals true`},
		{name: "Boolean invalid op: error", record: `{"isActive": true}`, condition: `isActive greaterThan false`, expectErr: true, errContains: "invalid for boolean comparison"},

		// --- Null Comparisons ---
		{name: "Null equals", record: `{"confirmedAt": null}`, condition: `confirmedAt equals null`, expectMatch: true},
		{name: "Null notEquals value", record: `{"confirmedAt": "2024-01-01"}`, condition: `confirmedAt notEquals null`, expectMatch: true},
		{name: "Null invalid op: error", record: `{"confirmedAt": null}`, condition: `confirmedAt greaterThan null`, expectErr: true, errContains: "invalid for null comparison"},

		// --- Array Comparisons ---
		{name: "Array contains string", record: `{"tags": ["letters", "songs"]}`, condition: `tags contains "songs"`, expectMatch: true},
		{name: "Array contains insensitive", record: `{"tags": ["Letters"]}`, condition: `tags contains-insensitive "letters"`, expectMatch: true},
		{name: "Array contains: type mismatch", record: `{"scores": [10, 20]}`, condition: `scores contains "10"`},
		{name: "Array contains number", record: `{"scores": [10, 20]}`, condition: `scores contains 20`, expectMatch: true},
		{name: "Array invalid op: error", record: `{"tags": ["a"]}`, condition: `tags equals "a"`, expectErr: true, errContains: "invalid for array comparison"},

		// --- Objects and missing paths ---
		{name: "Object: error", record: `{"meta": {"a": 1}}`, condition: `meta equals "x"`, expectErr: true, errContains: "cannot directly compare JSON objects"},
		{name: "Nested path", record: `{"meta": {"level": 2}}`, condition: `meta.level equals 2`, expectMatch: true},
		{name: "Missing path: equals", record: `{}`, condition: `category equals "x"`},
		{name: "Missing path: notEquals", record: `{}`, condition: `category notEquals "x"`, expectMatch: true},
		{name: "Exists true", record: `{"videoUrl": ""}`, condition: `videoUrl exists true`, expectMatch: true},
		{name: "Exists false", record: `{}`, condition: `videoUrl exists false`, expectMatch: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cond, err := parseSingleCondition(tc.condition)
			require.NoError(t, err, "Failed to parse test condition: %s", tc.condition)

			match, err := evaluateSingleCondition([]byte(tc.record), cond)
			if tc.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectMatch, match)
		})
	}
}

func TestEvaluateQuery(t *testing.T) {
	record := []byte(`{"title": "Counting", "price": 12.99, "tags": ["animals"]}`)

	testCases := []struct {
		name        string
		parts       []string
		expectMatch bool
	}{
		{name: "AND: both", parts: []string{`title equals "Counting"`, "and", `price greaterThan 10`}, expectMatch: true},
		{name: "AND: second fails", parts: []string{`title equals "Counting"`, "and", `price lessThan 10`}},
		{name: "OR: second", parts: []string{`title equals "Letters"`, "or", `tags contains "animals"`}, expectMatch: true},
		{name: "Left to right", parts: []string{`title equals "Counting"`, "and", `price lessThan 10`, "or", `tags contains "animals"`}, expectMatch: true},
		{name: "No query", parts: nil, expectMatch: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseQuery(tc.parts)
			require.NoError(t, err)
			match, err := EvaluateQuery(record, parsed)
			require.NoError(t, err)
			assert.Equal(t, tc.expectMatch, match)
		})
	}
}

// --- Catalog Tests ---

func TestStore_QueryCatalog(t *testing.T) {
	store, _ := setupTestStore(t)
	writeLive(t, store, `{
		"users": [{"id":"u1","email":"kid@example.com","password":"$2a$04$abcdefghijklmnopqrstuuY3n1m8P0mG0j8yQ7bA0rWm3bJ8b5yCi"}],
		"modules": [
			{"id":"m1","title":"Letters","price":9.99,"category":"Language","isActive":true},
			{"id":"m2","title":"Counting","price":12.99,"category":"Numbers","isActive":true},
			{"id":"m3","title":"Shapes","price":4.5,"category":"Numbers","isActive":false},
			{"id":"m4","title":"Colours","category":"Art","isActive":true}
		]
	}`)
	ctx := context.Background()

	ids := func(records []json.RawMessage) []string {
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, gjson.GetBytes(r, "id").String())
		}
		return out
	}

	t.Run("filter", func(t *testing.T) {
		page, total, err := store.QueryCatalog(ctx, QueryParams{
			Collection: "modules",
			Query:      []string{`category equals "Numbers"`, `isActive equals true`},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, []string{"m2"}, ids(page))
	})

	t.Run("sort and paginate", func(t *testing.T) {
		page, total, err := store.QueryCatalog(ctx, QueryParams{
			Collection: "modules",
			SortBy:     "price",
			Order:      "desc",
			Limit:      2,
			Offset:     1,
		})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Equal(t, []string{"m1", "m3"}, ids(page))
	})

	t.Run("offset past end", func(t *testing.T) {
		page, total, err := store.QueryCatalog(ctx, QueryParams{Collection: "modules", Offset: 10})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Empty(t, page)
	})

	t.Run("users without password", func(t *testing.T) {
		page, _, err := store.QueryCatalog(ctx, QueryParams{Collection: "users"})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.False(t, gjson.GetBytes(page[0], "password").Exists())
	})

	t.Run("unknown collection", func(t *testing.T) {
		_, _, err := store.QueryCatalog(ctx, QueryParams{Collection: "comments"})
		assert.ErrorIs(t, err, ErrUnknownCollection)
	})

	t.Run("invalid query", func(t *testing.T) {
		_, _, err := store.QueryCatalog(ctx, QueryParams{Collection: "modules", Query: []string{`price like 3`}})
		assert.ErrorIs(t, err, ErrInvalidQuery)
		_, _, err = store.QueryCatalog(ctx, QueryParams{Collection: "modules", Query: []string{`title greaterThan 3`}})
		assert.ErrorIs(t, err, ErrInvalidQuery)
		_, _, err = store.QueryCatalog(ctx, QueryParams{Collection: "modules", Order: "sideways"})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}
