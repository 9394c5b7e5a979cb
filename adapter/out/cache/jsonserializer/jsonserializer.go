// Package jsonserializer implements the cache core's Serializer port
// over github.com/goccy/go-json, the JSON library the teacher already
// uses for its faster drop-in replacement of encoding/json.
package jsonserializer

import gojson "github.com/goccy/go-json"

// Serializer marshals values with goccy/go-json.
type Serializer struct{}

// New builds a Serializer.
func New() *Serializer {
	return &Serializer{}
}

func (s *Serializer) Serialize(value any) ([]byte, error) {
	return gojson.Marshal(value)
}

func (s *Serializer) Deserialize(data []byte, out any) error {
	return gojson.Unmarshal(data, out)
}
