package main

import (
	"testing"

	"gbxremote/message"
)

func TestParseParam(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"42", 42},
		{"-7", -7},
		{"1.5", 1.5},
		{"true", true},
		{"false", false},
		{"$f00Server", "$f00Server"},
		{"9999999999", 9999999999.0},
	}
	for _, tc := range cases {
		got, err := parseParam(tc.in, false)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Fatalf("parseParam(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParseParamJSON(t *testing.T) {
	got, err := parseParam(`{"S_TimeLimit": 300, "S_Name": "cup", "S_Maps": [1, 2.5]}`, true)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := got.(*message.Struct)
	if !ok {
		t.Fatalf("got %T", got)
	}
	if st.Members()[0].Name != "S_Maps" {
		t.Fatalf("members not sorted: %+v", st.Members())
	}
	if v, _ := st.Get("S_TimeLimit"); v != 300 {
		t.Fatalf("S_TimeLimit = %#v", v)
	}
	maps, _ := st.Get("S_Maps")
	if l := maps.([]any); l[0] != 1 || l[1] != 2.5 {
		t.Fatalf("S_Maps = %#v", l)
	}

	if _, err := parseParam(`{`, true); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
