package http

import (
	"io"
	"strings"
	"testing"
)

func TestCreateRequestBodyFormEncoded(t *testing.T) {
	c := NewClient()
	body, err := c.createRequestBody(&RequestOptions{
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    map[string]string{"grant_type": "refresh_token", "scope": "data"},
	})
	if err != nil {
		t.Fatalf("create body: %v", err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if got := string(raw); got != "grant_type=refresh_token&scope=data" {
		t.Fatalf("unexpected encoded form: %q", got)
	}
}

func TestCreateRequestBodyDefaultsToJSON(t *testing.T) {
	c := NewClient()
	// without the form content type a string map still marshals as JSON
	body, err := c.createRequestBody(&RequestOptions{
		Body: map[string]string{"symbol": "AAPL"},
	})
	if err != nil {
		t.Fatalf("create body: %v", err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if got := string(raw); !strings.Contains(got, `"symbol":"AAPL"`) {
		t.Fatalf("unexpected json body: %q", got)
	}
}
