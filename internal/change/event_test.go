package change

import (
	"testing"
)

func TestEventEqualityIgnoresCompiledFlag(t *testing.T) {
	a := New("src/main/java/A.java", Modified, true)
	b := New("src/main/java/A.java", Modified, false)
	if !a.Equal(b) {
		t.Errorf("expected %v to equal %v", a, b)
	}

	c := New("src/main/java/A.java", Deleted, true)
	if a.Equal(c) {
		t.Errorf("expected different kinds to be unequal")
	}
}

func TestSortIsLexicographicOnPath(t *testing.T) {
	events := []Event{
		New("src/b/B.java", Modified, true),
		New("src/a/A.java", Deleted, true),
		New("src/a/A.java", Created, true),
		New("pom.xml", Modified, false),
	}
	Sort(events)

	want := []Key{
		{"pom.xml", Modified},
		{"src/a/A.java", Created},
		{"src/a/A.java", Deleted},
		{"src/b/B.java", Modified},
	}
	for i, e := range events {
		if e.Key() != want[i] {
			t.Errorf("events[%d] = %v, want %v", i, e.Key(), want[i])
		}
	}
}

func TestDedup(t *testing.T) {
	events := []Event{
		New("src/A.java", Modified, true),
		New("src/A.java", Modified, true),
		New("src/A.java", Deleted, true),
		New("src/B.java", Modified, true),
	}
	got := Dedup(events)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(got), got)
	}
	if got[0].Key() != (Key{"src/A.java", Deleted}) {
		t.Errorf("got[0] = %v", got[0].Key())
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"created", Created, false},
		{"modify", Modified, false},
		{"deleted", Deleted, false},
		{"renamed", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifier(t *testing.T) {
	c, err := NewClassifier(nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"src/main/java/com/example/App.java", true},
		{"src/main/kotlin/App.kt", true},
		{"src/main/resources/application.properties", false},
		{"src/main/webapp/index.html", false},
	}
	for _, tt := range tests {
		if got := c.IsCompiledUnit(tt.path); got != tt.want {
			t.Errorf("IsCompiledUnit(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestClassifierRejectsBadPattern(t *testing.T) {
	if _, err := NewClassifier([]string{"src/[.java"}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}
