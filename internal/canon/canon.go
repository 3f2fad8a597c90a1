// Package canon produces deterministic JSON bytes and domain-separated
// SHA-256 digests. It is the only serialization used for transaction
// hashing and dedup-marker synthesis; storage serialization uses plain
// encoding/json and is free to differ.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content hashing. The version suffix enables
// future algorithm migration without ambiguity against old digests.
const (
	DomainTransaction = "nodal/tx/v1"
	DomainState       = "nodal/state/v1"
	DomainDedup       = "nodal/dedup/v1"
)

// Marshal serializes v to canonical bytes:
//   - object keys sorted bytewise
//   - strings NFC-normalized, no HTML escaping
//   - floats rendered with strconv shortest form (deterministic for a
//     given bit pattern)
//   - null permitted (a chain head has a null parent)
//
// Types without an explicit case are round-tripped through
// encoding/json first, so typed maps and structs are accepted.
func Marshal(v any) ([]byte, error) {
	return marshal(v)
}

// Hash computes hex(SHA-256(domain || 0x00 || canonical(v))). The null
// separator prevents domain/payload boundary ambiguity.
func Hash(domain string, v any) (string, error) {
	data, err := marshal(v)
	if err != nil {
		return "", fmt.Errorf("canon hash: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func marshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case string:
		return marshalString(val)
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case float64:
		return marshalFloat(val)
	case json.Number:
		return []byte(val.String()), nil
	case []any:
		return marshalArray(val)
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return marshalArray(arr)
	case []float64:
		arr := make([]any, len(val))
		for i, f := range val {
			arr[i] = f
		}
		return marshalArray(arr)
	case map[string]any:
		return marshalObject(val)
	case map[string][]float64:
		obj := make(map[string]any, len(val))
		for k, vec := range val {
			obj[k] = vec
		}
		return marshalObject(obj)
	default:
		// Round-trip unknown types through encoding/json so typed
		// values reduce to the cases above.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("unsupported type for canonical bytes: %T: %w", v, err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("canonicalize %T: %w", v, err)
		}
		return marshal(generic)
	}
}

func marshalFloat(f float64) ([]byte, error) {
	// Integral floats render without a fraction ("8", not "8.0"),
	// matching what encoding/json produces on decode/encode cycles.
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// marshalString NFC-normalizes at the serialization boundary and
// disables HTML escaping (<, >, & stay literal).
func marshalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder appends a trailing newline, drop it.
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out, nil
}

func marshalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshal(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
