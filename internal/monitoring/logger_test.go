package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("belief recorder failed")
	if got != "belief recorder failed" {
		t.Errorf("custom logger not invoked, got %q", got)
	}

	// nil installs a no-op logger rather than panicking
	SetLogger(nil)
	Logf("dropped")
}
