package typetag

import "testing"

func TestForStableAcrossCalls(t *testing.T) {
	a := For[int]()
	b := For[int]()
	if !a.Equal(b) {
		t.Errorf("For[int]() called twice produced different tags: %v != %v", a, b)
	}
}

func TestForDistinctTypes(t *testing.T) {
	a := For[int]()
	b := For[string]()
	if a.Equal(b) {
		t.Error("For[int]() and For[string]() must not compare equal")
	}
}

func TestForDistinctGenericInstantiations(t *testing.T) {
	a := For[[]int]()
	b := For[[]string]()
	if a.Equal(b) {
		t.Error("For[[]int]() and For[[]string]() must not compare equal")
	}
}

func TestStringNonEmpty(t *testing.T) {
	tag := For[struct{ X int }]()
	if tag.String() == "" {
		t.Error("Tag.String() should not be empty")
	}
}
