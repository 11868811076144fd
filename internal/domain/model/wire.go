package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Wire keys for the scalar fields. Sequence keys are the PolicyField values.
const (
	keyRequiredReviews        = "requiredReviews"
	keyAutoUnapprove          = "autoUnapprove"
	keyBlockByDefaultReviewer = "blockByDefaultReviewer"
)

// DecodePolicy maps a wire document onto a Policy. It never fails: malformed
// input, missing keys and wrong types fall back to a zero count, an empty
// sequence or an empty flag, so the editor stays usable against a partial or
// never-configured store entry.
func DecodePolicy(data []byte) Policy {
	p := NewPolicy()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return p
	}

	p.RequiredReviews = decodeCount(raw[keyRequiredReviews])
	for _, f := range ListFields() {
		p.SetList(f, decodeList(raw[string(f)]))
	}
	p.AutoUnapprove = decodeFlag(raw[keyAutoUnapprove])
	p.BlockByDefaultReviewer = decodeFlag(raw[keyBlockByDefaultReviewer])

	return p
}

// EncodePolicy renders a Policy in the wire format. Sequences are always
// arrays, flags reading "true"/"false" become JSON booleans and empty flags
// are omitted.
func EncodePolicy(p Policy) ([]byte, error) {
	doc := make(map[string]any, len(ListFields())+3)

	doc[keyRequiredReviews] = max(p.RequiredReviews, 0)
	for _, f := range ListFields() {
		values := p.List(f)
		if values == nil {
			values = []string{}
		}
		doc[string(f)] = values
	}
	if v, ok := encodeFlag(p.AutoUnapprove); ok {
		doc[keyAutoUnapprove] = v
	}
	if v, ok := encodeFlag(p.BlockByDefaultReviewer); ok {
		doc[keyBlockByDefaultReviewer] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	return data, nil
}

func decodeCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		n = float64(parsed)
	}

	if n <= 0 || math.IsNaN(n) {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// decodeList accepts a JSON array of strings or a comma-text string. Array
// elements that are not strings are skipped.
func decodeList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		out := []string{}
		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return ParseList(text)
	}

	return []string{}
}

func decodeFlag(raw json.RawMessage) FlagValue {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return FlagValue(s)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return FlagValue(strconv.FormatBool(b))
	}

	return ""
}

func encodeFlag(f FlagValue) (any, bool) {
	switch f {
	case "":
		return nil, false
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return string(f), true
	}
}
