package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestObjectEncoder_Encode(t *testing.T) {
	e := NewObjectEncoder([]string{"a", "b"})
	got := e.Encode(`hello`, `x"y`)
	want := `{"a":"hello","b":"x\"y"}`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestObjectEncoder_MissingValues(t *testing.T) {
	e := NewObjectEncoder([]string{"a", "b"})
	if got := e.Encode("only"); got != `{"a":"only","b":""}` {
		t.Fatalf("got %q", got)
	}
}

func TestObjectEncoder_ValidJSON(t *testing.T) {
	e := NewObjectEncoder([]string{"name", "note"})
	out := e.Encode("Zoë Ångström", "tab\there\x01\nend\xff")
	var m map[string]string
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if m["name"] != "Zoë Ångström" {
		t.Fatalf("name mangled: %q", m["name"])
	}
	if m["note"] != "tab\there\x01\nend�" {
		t.Fatalf("note mangled: %q", m["note"])
	}
}
