package jsonserializer

import "testing"

type person struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	s := New()

	data, err := s.Serialize(person{Name: "ada", Age: 30})
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	var got person
	if err := s.Deserialize(data, &got); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if got.Name != "ada" || got.Age != 30 {
		t.Errorf("Deserialize() = %+v, want {ada 30}", got)
	}
}

func TestDeserializeInvalidPayload(t *testing.T) {
	s := New()
	var got person
	if err := s.Deserialize([]byte("not json"), &got); err == nil {
		t.Error("Deserialize(invalid) error = nil, want error")
	}
}
