package oplock

import (
	"errors"
	"fmt"
	"testing"
)

type versionedDoc struct {
	version int
}

func (d *versionedDoc) GetVersionID() int  { return d.version }
func (d *versionedDoc) SetVersionID(v int) { d.version = v }

func TestCheck_Match(t *testing.T) {
	if err := Check("invoice", "abc", 3, 3); err != nil {
		t.Fatalf("Check with matching versions: %v", err)
	}
}

func TestCheck_Mismatch(t *testing.T) {
	err := Check("invoice", "abc", 1, 2)
	if err == nil {
		t.Fatal("Check with stale version returned nil")
	}

	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Check returned %T, want *ConflictError", err)
	}
	if ce.Resource != "invoice" || ce.ID != "abc" {
		t.Errorf("conflict identifies %s/%s, want invoice/abc", ce.Resource, ce.ID)
	}
	if ce.Expected != 1 || ce.Actual != 2 {
		t.Errorf("conflict versions %d/%d, want 1/2", ce.Expected, ce.Actual)
	}

	want := "invoice abc: version conflict: expected version 1 but document is at version 2"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsConflict(t *testing.T) {
	err := Check("booking", "b1", 4, 9)
	if !IsConflict(err) {
		t.Error("IsConflict(ConflictError) = false")
	}
	if !IsConflict(fmt.Errorf("allocate: %w", err)) {
		t.Error("IsConflict(wrapped ConflictError) = false")
	}
	if IsConflict(errors.New("boom")) {
		t.Error("IsConflict(plain error) = true")
	}
	if IsConflict(nil) {
		t.Error("IsConflict(nil) = true")
	}
}

func TestBump(t *testing.T) {
	doc := &versionedDoc{version: 7}
	Bump(doc)
	if doc.version != 8 {
		t.Errorf("version after Bump = %d, want 8", doc.version)
	}
}

func TestParseETag(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{`W/"3"`, 3},
		{`"12"`, 12},
		{"5", 5},
		{` W/"1" `, 1},
	}
	for _, c := range cases {
		got, err := ParseETag(c.in)
		if err != nil {
			t.Errorf("ParseETag(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseETag(%q) = %d, want %d", c.in, got, c.want)
		}
	}

	if _, err := ParseETag(`W/"abc"`); err == nil {
		t.Error("ParseETag with non-numeric version succeeded")
	}
}

func TestFormatETag(t *testing.T) {
	if got := FormatETag(4); got != `W/"4"` {
		t.Errorf("FormatETag(4) = %q", got)
	}
}
