package value

import "testing"

func TestEqualNumericCrossType(t *testing.T) {
	if !Equal(Int(3), Float(3.0)) {
		t.Fatal("expected int 3 to equal float 3.0")
	}
	if Equal(Int(3), Float(3.5)) {
		t.Fatal("did not expect int 3 to equal float 3.5")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Null(), false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), true},
		{Str(""), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestToNumber(t *testing.T) {
	v, err := ToNumber(Str("42"))
	if err != nil || v.Kind != KindInt || v.Int != 42 {
		t.Fatalf("expected int 42, got %v, err %v", v, err)
	}
	v, err = ToNumber(Str("3.5"))
	if err != nil || v.Kind != KindFloat || v.Flt != 3.5 {
		t.Fatalf("expected float 3.5, got %v, err %v", v, err)
	}
}

func TestToNumberRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 12345} {
		s, err := ToString(Int(n))
		if err != nil {
			t.Fatal(err)
		}
		back, err := ToNumber(Str(s))
		if err != nil || back.Int != n {
			t.Fatalf("round trip failed for %d: %v %v", n, back, err)
		}
	}
}

func TestAsIntStringFloorsNegatives(t *testing.T) {
	got, err := AsIntString(Float(-3.2))
	if err != nil {
		t.Fatal(err)
	}
	if got != "-4" {
		t.Fatalf("expected floor(-3.2) = -4, got %s", got)
	}
	got, err = AsIntString(Float(3.7))
	if err != nil {
		t.Fatal(err)
	}
	if got != "3" {
		t.Fatalf("expected floor(3.7) = 3, got %s", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := Map(map[string]Value{
		"b": Int(2),
		"a": List(Str("x"), Bool(true), Null()),
	})
	text, err := Encode(orig)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(text)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(orig, back) {
		t.Fatalf("round trip mismatch: %v != %v", orig, back)
	}
}

func TestIsEmptyCollection(t *testing.T) {
	if !IsEmptyCollection(List()) {
		t.Fatal("expected empty list to be empty collection")
	}
	if !IsEmptyCollection(Map(map[string]Value{})) {
		t.Fatal("expected empty map to be empty collection")
	}
	if IsEmptyCollection(Null()) {
		t.Fatal("null is not an empty collection")
	}
}
