package table

import (
	"testing"
	"time"
)

func TestRowAccessors(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := Row{"s": "abc", "f": 1.5, "t": now, "n": nil}

	if got := r.String("s"); got != "abc" {
		t.Errorf("String = %q", got)
	}
	if got := r.String("f"); got != "1.5" {
		t.Errorf("String on float = %q", got)
	}
	if got := r.String("n"); got != "" {
		t.Errorf("String on NULL = %q", got)
	}
	if f, ok := r.Float("f"); !ok || f != 1.5 {
		t.Errorf("Float = %v, %v", f, ok)
	}
	if _, ok := r.Float("s"); ok {
		t.Error("Float on string must report false")
	}
	if tv, ok := r.Time("t"); !ok || !tv.Equal(now) {
		t.Errorf("Time = %v, %v", tv, ok)
	}
	if _, ok := r.Time("missing"); ok {
		t.Error("Time on missing column must report false")
	}
}

func TestRowCloneIsIndependent(t *testing.T) {
	r := Row{"a": "x"}
	c := r.Clone()
	c["a"] = "y"
	c["b"] = "z"
	if r.String("a") != "x" {
		t.Error("clone write leaked into original")
	}
	if _, ok := r["b"]; ok {
		t.Error("clone key leaked into original")
	}
}

func TestSortByIsTotalAndStable(t *testing.T) {
	tb := New("k", "v")
	tb.Append(Row{"k": "b", "v": 2.0})
	tb.Append(Row{"k": nil, "v": 3.0})
	tb.Append(Row{"k": "a", "v": 1.0})
	tb.Append(Row{"k": "b", "v": 1.0})

	tb.SortBy("k", "v")

	wantK := []any{nil, "a", "b", "b"}
	for i, w := range wantK {
		if tb.Rows[i]["k"] != w {
			t.Fatalf("row %d: k = %v, want %v", i, tb.Rows[i]["k"], w)
		}
	}
	// Tie on k resolved by v.
	if v, _ := tb.Rows[2].Float("v"); v != 1.0 {
		t.Errorf("tie-break failed: v = %v", v)
	}
}

func TestSortByTime(t *testing.T) {
	tb := New("at")
	t1 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tb.Append(Row{"at": t1})
	tb.Append(Row{"at": t2})
	tb.SortBy("at")
	if got, _ := tb.Rows[0].Time("at"); !got.Equal(t2) {
		t.Errorf("first row = %v, want %v", got, t2)
	}
}

func TestHasColumn(t *testing.T) {
	tb := New("a", "b")
	if !tb.HasColumn("a") || tb.HasColumn("z") {
		t.Error("HasColumn mismatch")
	}
}

func TestLenOnNil(t *testing.T) {
	var tb *Table
	if tb.Len() != 0 {
		t.Error("nil table Len must be 0")
	}
}
