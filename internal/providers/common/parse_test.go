package common

import "testing"

func TestParseNumber(t *testing.T) {
	cases := []struct {
		input string
		want  float64
		ok    bool
	}{
		{input: "42", want: 42, ok: true},
		{input: " 12.5 ", want: 12.5, ok: true},
		{input: "1 234,5", want: 1234.5, ok: true},
		{input: "1 200", want: 1200, ok: true},
		{input: "abc", ok: false},
		{input: "", ok: false},
		{input: "NaN", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.input)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCountFallsBackToZero(t *testing.T) {
	cases := []struct {
		node *Node
		want int
	}{
		{node: NumberNode(7), want: 7},
		{node: StringNode("15"), want: 15},
		{node: StringNode("n/a"), want: 0},
		{node: NumberNode(-3), want: 0},
		{node: NullNode(), want: 0},
		{node: ObjectNode(), want: 0},
		{node: ArrayNode(NumberNode(1)), want: 0},
		{node: nil, want: 0},
	}
	for _, tc := range cases {
		if got := Count(tc.node); got != tc.want {
			t.Errorf("Count(%+v) = %d, want %d", tc.node, got, tc.want)
		}
	}
}

func TestFlag(t *testing.T) {
	truthy := []*Node{StringNode("1"), StringNode("yes"), NumberNode(1), BoolNode(true)}
	for _, n := range truthy {
		if !Flag(n) {
			t.Errorf("expected %+v to be true", n)
		}
	}
	falsy := []*Node{StringNode("0"), StringNode(""), NumberNode(0), nil, ObjectNode()}
	for _, n := range falsy {
		if Flag(n) {
			t.Errorf("expected %+v to be false", n)
		}
	}
}

func TestCleanHTMLText(t *testing.T) {
	got := CleanHTMLText("  <p>Sea&nbsp;view</p><br/>  pool ")
	if got != "Sea view pool" {
		t.Fatalf("unexpected cleaned text %q", got)
	}
}
