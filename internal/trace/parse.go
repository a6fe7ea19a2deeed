package trace

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/valyala/fastjson"
)

// MaxDepth bounds how deeply sub-queries may nest below the root.
const MaxDepth = 64

const rootPath = "root"

const maxMillis = uint64(math.MaxInt64 / int64(time.Millisecond))

// ParseBytes parses a JSON-encoded trace.
func ParseBytes(data []byte) (*Root, error) {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid trace: %w", err)
	}
	return Parse(v)
}

// Parse converts the trace value of a graph-node response into a tree. The
// first structural problem anywhere in the tree aborts the whole parse.
func Parse(v *fastjson.Value) (*Root, error) {
	o, err := asObject(v, rootPath)
	if err != nil {
		return nil, err
	}

	root := &Root{}
	if root.Query, err = stringField(o, rootPath, "query"); err != nil {
		return nil, err
	}
	if root.Variables, err = variablesField(o, rootPath); err != nil {
		return nil, err
	}
	if root.QueryID, err = stringField(o, rootPath, "query_id"); err != nil {
		return nil, err
	}
	if root.Block, err = uintField(o, rootPath, "block"); err != nil {
		return nil, err
	}
	if root.Elapsed, root.ConnWait, root.PermitWait, err = timings(o, rootPath); err != nil {
		return nil, err
	}
	if root.Children, err = parseChildren(o, rootPath, 1); err != nil {
		return nil, err
	}
	return root, nil
}

func parseChild(name string, v *fastjson.Value, parent string, depth int) (Child, error) {
	path := parent + "." + name
	if depth > MaxDepth {
		return Child{}, &TooDeepError{Path: path, Limit: MaxDepth}
	}
	o, err := asObject(v, path)
	if err != nil {
		return Child{}, err
	}

	q := &Query{}
	if q.Elapsed, q.ConnWait, q.PermitWait, err = timings(o, path); err != nil {
		return Child{}, err
	}
	if q.EntityCount, err = uintField(o, path, "entity_count"); err != nil {
		return Child{}, err
	}
	// Store queries carry their SQL; anything else is kept as raw JSON.
	if s := o.Get("query"); s != nil && s.Type() == fastjson.TypeString {
		q.Query = string(s.GetStringBytes())
	} else {
		q.Query = v.String()
	}
	if q.Children, err = parseChildren(o, path, depth+1); err != nil {
		return Child{}, err
	}
	return Child{Name: name, Trace: q}, nil
}

// isChild decides which entries of a node are sub-traces: every object-valued
// entry is one, whatever its key.
func isChild(v *fastjson.Value) bool {
	return v.Type() == fastjson.TypeObject
}

func parseChildren(o *fastjson.Object, path string, depth int) ([]Child, error) {
	var (
		children []Child
		err      error
	)
	o.Visit(func(key []byte, v *fastjson.Value) {
		if err != nil || !isChild(v) {
			return
		}
		var c Child
		if c, err = parseChild(string(key), v, path, depth); err == nil {
			children = append(children, c)
		}
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

func asObject(v *fastjson.Value, path string) (*fastjson.Object, error) {
	if v == nil {
		return nil, &NotAnObjectError{Context: path}
	}
	o, err := v.Object()
	if err != nil {
		return nil, &NotAnObjectError{Context: path}
	}
	return o, nil
}

func timings(o *fastjson.Object, path string) (elapsed, connWait, permitWait time.Duration, err error) {
	if elapsed, err = millisField(o, path, "elapsed_ms"); err != nil {
		return
	}
	if connWait, err = millisField(o, path, "conn_wait_ms"); err != nil {
		return
	}
	permitWait, err = millisField(o, path, "permit_wait_ms")
	return
}

func millisField(o *fastjson.Object, path, key string) (time.Duration, error) {
	ms, err := uintField(o, path, key)
	if err != nil {
		return 0, err
	}
	if ms > maxMillis {
		return 0, &WrongTypeError{Path: path, Field: key, Expected: "a duration in milliseconds"}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func uintField(o *fastjson.Object, path, key string) (uint64, error) {
	v := o.Get(key)
	if v == nil {
		return 0, &MissingFieldError{Path: path, Field: key}
	}
	n, err := v.Uint64()
	if err != nil {
		return 0, &WrongTypeError{Path: path, Field: key, Expected: "a non-negative integer"}
	}
	return n, nil
}

func stringField(o *fastjson.Object, path, key string) (string, error) {
	v := o.Get(key)
	if v == nil {
		return "", &MissingFieldError{Path: path, Field: key}
	}
	b, err := v.StringBytes()
	if err != nil {
		return "", &WrongTypeError{Path: path, Field: key, Expected: "a string"}
	}
	return string(b), nil
}

// variablesField decodes the JSON document embedded in the root's variables
// string.
func variablesField(o *fastjson.Object, path string) (json.RawMessage, error) {
	s, err := stringField(o, path, "variables")
	if err != nil {
		return nil, err
	}
	v, err := fastjson.Parse(s)
	if err != nil {
		return nil, &WrongTypeError{Path: path, Field: "variables", Expected: "a JSON-encoded string"}
	}
	return json.RawMessage(v.MarshalTo(nil)), nil
}
