package message

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAcceptsNormalContent(t *testing.T) {
	if err := Validate("hey, is this still for sale?"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateEmptyContent(t *testing.T) {
	if err := Validate(""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if err := Validate(" \n\t "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage for whitespace, got %v", err)
	}
}

func TestValidateByteLimit(t *testing.T) {
	if err := Validate(strings.Repeat("x", MaxContentBytes+1)); err == nil {
		t.Error("expected error for oversized content")
	}
}

func TestValidateCharLimit(t *testing.T) {
	// Multi-byte runes: under the byte limit but over the character limit.
	if err := Validate(strings.Repeat("é", MaxContentChars+1)); err == nil {
		t.Error("expected error for too many characters")
	}
}

func TestValidateInvalidUTF8(t *testing.T) {
	if err := Validate(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}
