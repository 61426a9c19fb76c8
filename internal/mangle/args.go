package mangle

import (
	"encoding/json"
	"fmt"
	"strings"
)

type taggedArg struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

// EncodeArgs serializes fact arguments with their kind so numbers and names
// survive a round trip through storage.
func EncodeArgs(args []interface{}) (string, error) {
	out := make([]taggedArg, len(args))
	for i, arg := range args {
		var tag string
		switch v := arg.(type) {
		case string:
			tag = "s"
			if strings.HasPrefix(v, "/") {
				tag = "n"
			}
		case int, int32, int64:
			tag = "i"
		case float32, float64:
			tag = "f"
		case bool:
			tag = "b"
		default:
			return "", fmt.Errorf("arg %d: unsupported type %T", i, arg)
		}
		raw, err := json.Marshal(arg)
		if err != nil {
			return "", err
		}
		out[i] = taggedArg{T: tag, V: raw}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeArgs reverses EncodeArgs.
func DecodeArgs(data string) ([]interface{}, error) {
	var tagged []taggedArg
	if err := json.Unmarshal([]byte(data), &tagged); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	args := make([]interface{}, len(tagged))
	for i, t := range tagged {
		var err error
		switch t.T {
		case "s", "n":
			var s string
			err = json.Unmarshal(t.V, &s)
			args[i] = s
		case "i":
			var n int64
			err = json.Unmarshal(t.V, &n)
			args[i] = n
		case "f":
			var f float64
			err = json.Unmarshal(t.V, &f)
			args[i] = f
		case "b":
			var b bool
			err = json.Unmarshal(t.V, &b)
			args[i] = b
		default:
			err = fmt.Errorf("unknown tag %q", t.T)
		}
		if err != nil {
			return nil, fmt.Errorf("decode arg %d: %w", i, err)
		}
	}
	return args, nil
}
