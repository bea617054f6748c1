package testutil

import (
	"net/http/httptest"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	w := httptest.NewRecorder()
	w.Body.WriteString(`{"value": 7}`)

	var body map[string]int
	DecodeJSON(t, w, &body)
	if body["value"] != 7 {
		t.Errorf("expected value 7, got %d", body["value"])
	}
}

func TestAssertStatusCodeMatch(t *testing.T) {
	AssertStatusCode(t, 200, 200)
	AssertNoError(t, nil)
}
