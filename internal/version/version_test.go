package version

import "testing"

func TestString(t *testing.T) {
	if Get() == "" {
		t.Fatal("embedded version is empty")
	}

	old := Commit
	defer func() { Commit = old }()

	Commit = ""
	if got := String(); got != Get() {
		t.Errorf("String() = %q, want %q", got, Get())
	}
	Commit = "0123456789abcdef"
	if got, want := String(), Get()+" (0123456789ab)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
