package proof

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// ClaimID derives the 32-byte claim id recorded with a minted badge:
// keccak256 over the compact JSON encoding of the proof document.
func ClaimID(p *Proof) (string, error) {
	if p == nil || len(p.Data) == 0 {
		return "", fmt.Errorf("%w: empty proof", ErrProofInvalid)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, p.Data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(buf.Bytes())
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeSignals accepts public signals as an array, as {"value": [...]},
// as an object keyed by index, or as a single scalar.
func NormalizeSignals(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: missing public signals", ErrInputs)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return scalars(list)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if v, ok := obj["value"]; ok {
			return NormalizeSignals(v)
		}
		return objectSignals(obj)
	}

	s, err := scalar(raw)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func objectSignals(obj map[string]json.RawMessage) ([]string, error) {
	type indexed struct {
		i int
		v json.RawMessage
	}
	var numeric []indexed
	for k, v := range obj {
		if i, err := strconv.Atoi(k); err == nil {
			numeric = append(numeric, indexed{i, v})
		}
	}
	if len(numeric) > 0 {
		sort.Slice(numeric, func(a, b int) bool { return numeric[a].i < numeric[b].i })
		list := make([]json.RawMessage, len(numeric))
		for i, n := range numeric {
			list[i] = n.v
		}
		return scalars(list)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		if k != "Count" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	list := make([]json.RawMessage, len(keys))
	for i, k := range keys {
		list[i] = obj[k]
	}
	return scalars(list)
}

func scalars(list []json.RawMessage) ([]string, error) {
	out := make([]string, len(list))
	for i, r := range list {
		s, err := scalar(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func scalar(r json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s, nil
	}

	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("%w: public signal %s is not a number", ErrInputs, r)
	}
	return n.String(), nil
}
