package trace

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

const sampleTrace = `{
	"query": "query { tokens { id } }",
	"variables": "{\"first\": 10}",
	"query_id": "abc-123",
	"block": 17000000,
	"elapsed_ms": 200,
	"conn_wait_ms": 3,
	"permit_wait_ms": 1,
	"tokens": {
		"query": "select * from sgd1.token",
		"elapsed_ms": 50,
		"conn_wait_ms": 0,
		"permit_wait_ms": 0,
		"entity_count": 10,
		"owner": {
			"elapsed_ms": 20,
			"conn_wait_ms": 0,
			"permit_wait_ms": 0,
			"entity_count": 4
		}
	},
	"pairs": {
		"elapsed_ms": 70,
		"conn_wait_ms": 1,
		"permit_wait_ms": 2,
		"entity_count": 7
	}
}`

func TestParse(t *testing.T) {
	root, err := ParseBytes([]byte(sampleTrace))
	require.NoError(t, err)

	assert.Equal(t, "query { tokens { id } }", root.Query)
	assert.JSONEq(t, `{"first": 10}`, string(root.Variables))
	assert.Equal(t, "abc-123", root.QueryID)
	assert.Equal(t, uint64(17000000), root.Block)
	assert.Equal(t, 200*time.Millisecond, root.Elapsed)
	assert.Equal(t, 3*time.Millisecond, root.ConnWait)
	assert.Equal(t, 1*time.Millisecond, root.PermitWait)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "tokens", root.Children[0].Name)
	assert.Equal(t, "pairs", root.Children[1].Name)

	tokens, ok := root.Children[0].Trace.(*Query)
	require.True(t, ok)
	assert.Equal(t, "select * from sgd1.token", tokens.Query)
	assert.Equal(t, uint64(10), tokens.EntityCount)
	require.Len(t, tokens.Children, 1)
	assert.Equal(t, "owner", tokens.Children[0].Name)

	pairs := root.Children[1].Trace.(*Query)
	assert.Equal(t, 70*time.Millisecond, pairs.Elapsed)
	assert.Equal(t, 1*time.Millisecond, pairs.ConnWait)
	assert.Equal(t, 2*time.Millisecond, pairs.PermitWait)
}

func TestParseMinimalQuery(t *testing.T) {
	v := fastjson.MustParse(`{"elapsed_ms": 100, "conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 5}`)

	c, err := parseChild("q", v, rootPath, 1)
	require.NoError(t, err)

	q := c.Trace.(*Query)
	assert.Equal(t, uint64(5), q.EntityCount)
	assert.Empty(t, q.Children)
	assert.Equal(t, 100*time.Millisecond, QueryTime(q))
	// Without a query field the node's own JSON is kept.
	assert.JSONEq(t, `{"elapsed_ms": 100, "conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 5}`, q.Query)
}

func TestParseChildDetection(t *testing.T) {
	root, err := ParseBytes([]byte(rootJSON(200, `
		"foo": "not a child",
		"bar": 42,
		"baz": [1, 2],
		"qux": null,
		"anything": {"elapsed_ms": 1, "conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 0}`)))
	require.NoError(t, err)

	require.Len(t, root.Children, 1)
	assert.Equal(t, "anything", root.Children[0].Name)
}

func TestParseObjectNamedFooIsChild(t *testing.T) {
	root, err := ParseBytes([]byte(rootJSON(10, `
		"foo": {"elapsed_ms": 4, "conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 2}`)))
	require.NoError(t, err)

	require.Len(t, root.Children, 1)
	assert.Equal(t, "foo", root.Children[0].Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, err error)
	}{
		{
			name:  "root missing elapsed_ms",
			input: `{"query": "q", "variables": "{}", "query_id": "x", "block": 1, "conn_wait_ms": 0, "permit_wait_ms": 0}`,
			check: func(t *testing.T, err error) {
				var missing *MissingFieldError
				require.True(t, errors.As(err, &missing))
				assert.Equal(t, "elapsed_ms", missing.Field)
				assert.Equal(t, "root", missing.Path)
			},
		},
		{
			name:  "child missing elapsed_ms",
			input: rootJSON(10, `"sub": {"conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 1}`),
			check: func(t *testing.T, err error) {
				var missing *MissingFieldError
				require.True(t, errors.As(err, &missing))
				assert.Equal(t, "elapsed_ms", missing.Field)
				assert.Equal(t, "root.sub", missing.Path)
			},
		},
		{
			name:  "elapsed_ms is a string",
			input: rootJSON(10, `"sub": {"elapsed_ms": "5", "conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 1}`),
			check: func(t *testing.T, err error) {
				var wrong *WrongTypeError
				require.True(t, errors.As(err, &wrong))
				assert.Equal(t, "elapsed_ms", wrong.Field)
				assert.Equal(t, "a non-negative integer", wrong.Expected)
			},
		},
		{
			name:  "negative duration",
			input: rootJSON(10, `"sub": {"elapsed_ms": -5, "conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 1}`),
			check: func(t *testing.T, err error) {
				var wrong *WrongTypeError
				require.True(t, errors.As(err, &wrong))
				assert.Equal(t, "elapsed_ms", wrong.Field)
			},
		},
		{
			name:  "duration out of range",
			input: rootJSON(10, `"sub": {"elapsed_ms": 18446744073709551615, "conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 1}`),
			check: func(t *testing.T, err error) {
				var wrong *WrongTypeError
				require.True(t, errors.As(err, &wrong))
				assert.Equal(t, "a duration in milliseconds", wrong.Expected)
			},
		},
		{
			name:  "missing entity_count",
			input: rootJSON(10, `"sub": {"elapsed_ms": 1, "conn_wait_ms": 0, "permit_wait_ms": 0}`),
			check: func(t *testing.T, err error) {
				var missing *MissingFieldError
				require.True(t, errors.As(err, &missing))
				assert.Equal(t, "entity_count", missing.Field)
			},
		},
		{
			name:  "block is fractional",
			input: `{"query": "q", "variables": "{}", "query_id": "x", "block": 1.5, "elapsed_ms": 1, "conn_wait_ms": 0, "permit_wait_ms": 0}`,
			check: func(t *testing.T, err error) {
				var wrong *WrongTypeError
				require.True(t, errors.As(err, &wrong))
				assert.Equal(t, "block", wrong.Field)
			},
		},
		{
			name:  "variables are not JSON",
			input: `{"query": "q", "variables": "{oops", "query_id": "x", "block": 1, "elapsed_ms": 1, "conn_wait_ms": 0, "permit_wait_ms": 0}`,
			check: func(t *testing.T, err error) {
				var wrong *WrongTypeError
				require.True(t, errors.As(err, &wrong))
				assert.Equal(t, "variables", wrong.Field)
			},
		},
		{
			name:  "query_id is a number",
			input: `{"query": "q", "variables": "{}", "query_id": 7, "block": 1, "elapsed_ms": 1, "conn_wait_ms": 0, "permit_wait_ms": 0}`,
			check: func(t *testing.T, err error) {
				var wrong *WrongTypeError
				require.True(t, errors.As(err, &wrong))
				assert.Equal(t, "query_id", wrong.Field)
				assert.Equal(t, "a string", wrong.Expected)
			},
		},
		{
			name:  "root is an array",
			input: `[1, 2, 3]`,
			check: func(t *testing.T, err error) {
				var notObject *NotAnObjectError
				require.True(t, errors.As(err, &notObject))
				assert.Equal(t, "root", notObject.Context)
			},
		},
		{
			name:  "root is null",
			input: `null`,
			check: func(t *testing.T, err error) {
				var notObject *NotAnObjectError
				assert.True(t, errors.As(err, &notObject))
			},
		},
		{
			name:  "malformed JSON",
			input: `{"query": `,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "invalid trace")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := ParseBytes([]byte(tt.input))
			require.Error(t, err)
			assert.Nil(t, root)
			tt.check(t, err)
		})
	}
}

func TestParseNil(t *testing.T) {
	_, err := Parse(nil)
	var notObject *NotAnObjectError
	assert.True(t, errors.As(err, &notObject))
}

func TestParseDepthLimit(t *testing.T) {
	const leaf = `"elapsed_ms": 1, "conn_wait_ms": 0, "permit_wait_ms": 0, "entity_count": 0`

	nested := func(levels int) string {
		var b strings.Builder
		for i := 0; i < levels; i++ {
			b.WriteString(`"n": {` + leaf + `,`)
		}
		b.WriteString(`"end": 0`)
		b.WriteString(strings.Repeat("}", levels))
		return rootJSON(10, b.String())
	}

	_, err := ParseBytes([]byte(nested(MaxDepth)))
	require.NoError(t, err)

	_, err = ParseBytes([]byte(nested(MaxDepth + 1)))
	var tooDeep *TooDeepError
	require.True(t, errors.As(err, &tooDeep))
	assert.Equal(t, MaxDepth, tooDeep.Limit)
}

func TestQueryID(t *testing.T) {
	assert.Equal(t, "abc", QueryID(&Root{QueryID: "abc"}))
	assert.Equal(t, NoQueryID, QueryID(&Query{}))
}

// rootJSON builds a valid root node with the given elapsed time and extra
// entries appended verbatim.
func rootJSON(elapsedMs int, extra string) string {
	s := `{"query": "q", "variables": "{}", "query_id": "qid", "block": 1, ` +
		`"elapsed_ms": ` + strconv.Itoa(elapsedMs) + `, "conn_wait_ms": 0, "permit_wait_ms": 0`
	if extra != "" {
		s += ", " + extra
	}
	return s + "}"
}
