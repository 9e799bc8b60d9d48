//go:build !ocr

package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestStubNew(t *testing.T) {
	client, err := New()
	if !errors.Is(err, ErrOCRNotEnabled) {
		t.Errorf("expected ErrOCRNotEnabled, got %v", err)
	}
	if client != nil {
		t.Error("expected nil client")
	}
}

func TestStubMethods(t *testing.T) {
	var client *Client

	// Close should be safe on nil
	if err := client.Close(); err != nil {
		t.Errorf("Close on nil client failed: %v", err)
	}

	if _, err := client.Recognize(context.Background(), []byte("test")); !errors.Is(err, ErrOCRNotEnabled) {
		t.Errorf("Recognize: expected ErrOCRNotEnabled, got %v", err)
	}
	if err := client.SetLanguage("eng"); !errors.Is(err, ErrOCRNotEnabled) {
		t.Errorf("SetLanguage: expected ErrOCRNotEnabled, got %v", err)
	}
	if err := client.SetPageSegMode(PSM_AUTO); !errors.Is(err, ErrOCRNotEnabled) {
		t.Errorf("SetPageSegMode: expected ErrOCRNotEnabled, got %v", err)
	}
}

// The stub still satisfies the interface so callers compile either way.
var _ Recognizer = (*Client)(nil)
