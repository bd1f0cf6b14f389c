package main

import (
	"strings"
	"testing"
)

func TestIsValidPlayerID(t *testing.T) {
	valid := []string{"a", "tg-12345", "Player_1", strings.Repeat("x", 64)}
	for _, id := range valid {
		if !isValidPlayerID(id) {
			t.Fatalf("isValidPlayerID(%q)=false want=true", id)
		}
	}

	invalid := []string{"", "has space", "semi;colon", "dot.id", "q'uote", strings.Repeat("x", 65)}
	for _, id := range invalid {
		if isValidPlayerID(id) {
			t.Fatalf("isValidPlayerID(%q)=true want=false", id)
		}
	}
}

func TestIsValidDisplayName(t *testing.T) {
	valid := []string{"", "Alice", "Боб", "Bob the Driver", strings.Repeat("x", 32)}
	for _, name := range valid {
		if !isValidDisplayName(name) {
			t.Fatalf("isValidDisplayName(%q)=false want=true", name)
		}
	}

	invalid := []string{"line\nbreak", "tab\there", "bell\x07", strings.Repeat("x", 33)}
	for _, name := range invalid {
		if isValidDisplayName(name) {
			t.Fatalf("isValidDisplayName(%q)=true want=false", name)
		}
	}
}
