package users

import (
	"encoding/json"
	"fmt"
	"io"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// payload is a decoded JSON object whose fields are typed lazily, so a field
// of the wrong type reads as absent instead of failing the whole body.
type payload map[string]json.RawMessage

func decodePayload(r io.Reader) (payload, error) {
	var p payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("decode body: expected a JSON object")
	}
	return p, nil
}

func (p payload) string(key string) (string, bool) {
	var v string
	return v, p.field(key, &v)
}

func (p payload) int(key string) (int, bool) {
	var v int
	return v, p.field(key, &v)
}

func (p payload) strings(key string) ([]string, bool) {
	var v []string
	if !p.field(key, &v) || v == nil {
		return nil, false
	}
	return v, true
}

func (p payload) field(key string, dst any) bool {
	raw, ok := p[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

type createRequest struct {
	Username string
	Age      int
	Hobbies  []string
}

func newCreateRequest(p payload) createRequest {
	var req createRequest
	req.Username, _ = p.string("username")
	req.Age, _ = p.int("age")
	req.Hobbies, _ = p.strings("hobbies")
	return req
}

func (r createRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Age, validation.Required),
		validation.Field(&r.Hobbies, validation.Required),
	)
}

// merge applies the well-typed fields of p over current.
func merge(current User, p payload) User {
	if username, ok := p.string("username"); ok {
		current.Username = username
	}
	if age, ok := p.int("age"); ok {
		current.Age = age
	}
	if hobbies, ok := p.strings("hobbies"); ok {
		current.Hobbies = hobbies
	}
	return current
}
