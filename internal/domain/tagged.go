package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// tagField is the discriminator key used by every tagged union in the
// domain model. Unions are serialized with the tag and the variant's own
// fields flattened into the same JSON object, e.g. {"type":"Network"} or
// {"type":"MatchRegex","regexToMatch":"...","fillCount":3}. See §6 of the
// specification.
const tagField = "type"

// encodeTagged marshals v (a variant's payload struct) merged with the
// discriminator tag at the same object level.
func encodeTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tagged %q: %w", tag, err)
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("encode tagged %q: %w", tag, err)
	}
	if flat == nil {
		flat = map[string]json.RawMessage{}
	}

	tagBytes, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	flat[tagField] = tagBytes

	return json.Marshal(flat)
}

// peekTag reads the discriminator tag from a tagged-union document without
// requiring the rest of the object to match any particular struct yet.
func peekTag(data []byte) (string, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("peek tag: %w", err)
	}
	if probe.Type == "" {
		return "", fmt.Errorf("peek tag: missing %q field", tagField)
	}
	return probe.Type, nil
}

// newStrictDecoder returns a json.Decoder over data that rejects unknown
// fields, used by the hand-written UnmarshalJSON methods on container
// structs throughout the domain package.
func newStrictDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec
}

// decodeTaggedStrict strips the discriminator tag and strictly decodes the
// remaining fields into out, rejecting any field out doesn't declare. An
// unknown tag is always a hard failure at the caller (exhaustive tags, per
// §4.1), never a silently-ignored default.
func decodeTaggedStrict(data []byte, out any) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("decode tagged: %w", err)
	}
	delete(flat, tagField)

	rest, err := json.Marshal(flat)
	if err != nil {
		return fmt.Errorf("decode tagged: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(rest))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode tagged: %w", err)
	}
	return nil
}
