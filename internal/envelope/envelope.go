// Package envelope normalizes generator replies into a domain payload or a
// classified error.
//
// The gateway in front of the generators sometimes returns the Lambda result
// as-is, so the interesting JSON arrives string-encoded inside a "body" field,
// and sometimes returns it already decoded. Unwrap accepts both without
// assuming which one occurs.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Payload is the decoded business result.
type Payload struct {
	Response map[string]any `json:"response"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Unwrap turns a raw reply body into a Payload. Failures are *Error values of
// kind MalformedResponse, InvalidShape or DomainError.
func Unwrap(raw []byte) (*Payload, error) {
	obj, err := resolve(raw)
	if err != nil {
		return nil, err
	}

	if msg, ok := domainMessage(obj); ok {
		return nil, ErrDomain(msg)
	}

	response, ok := obj["response"].(map[string]any)
	if !ok {
		return nil, ErrInvalidShape()
	}

	p := &Payload{Response: response}
	if metadata, ok := obj["metadata"].(map[string]any); ok {
		p.Metadata = metadata
	}
	return p, nil
}

// resolve decodes raw and descends into the body field, parsing it when it
// is a JSON string.
func resolve(raw []byte) (map[string]any, error) {
	top, err := decode(raw)
	if err != nil {
		return nil, ErrMalformed(err)
	}

	// A body that is itself one JSON string.
	if s, ok := top.(string); ok {
		if top, err = decode([]byte(s)); err != nil {
			return nil, ErrMalformed(err)
		}
	}

	outer, ok := top.(map[string]any)
	if !ok {
		return nil, ErrInvalidShape()
	}

	switch body := outer["body"].(type) {
	case nil:
		return outer, nil
	case map[string]any:
		return body, nil
	case string:
		inner, err := decode([]byte(body))
		if err != nil {
			return nil, ErrMalformed(err)
		}
		m, ok := inner.(map[string]any)
		if !ok {
			return nil, ErrInvalidShape()
		}
		return m, nil
	default:
		return nil, ErrInvalidShape()
	}
}

// domainMessage reports whether obj is an error payload and, if so, which
// message to show: details, then error, then message.
func domainMessage(obj map[string]any) (string, bool) {
	errText, hasErr := text(obj["error"])
	msgText, hasMsg := text(obj["message"])
	if !hasErr && !hasMsg {
		return "", false
	}

	if details, ok := text(obj["details"]); ok {
		return details, true
	}
	if hasErr {
		return errText, true
	}
	return msgText, true
}

func text(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	case bool:
		if !t {
			return "", false
		}
		return "true", true
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return "", false
		}
		return t.String(), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t), true
		}
		return string(b), true
	}
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}
