package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want Kind
	}{
		{"Login unknown.", UnknownPlayer},
		{"Map already added.", AlreadyInList},
		{"Password incorrect.", Authentication},
		{"Chat routing not enabled.", LockedFeature},
		{"Not a network player.", PlayerState},
		{"Map not in the list.", NotInList},
		{"Start index out of bound.", IndexOutOfBound},
		{"the next map must be different from the current one.", NextMap},
		{"Change in progress.", ChangeInProgress},
		{"Map corrupted.", InvalidMap},
		{"Not in Team mode.", GameMode},
		{"Ladder mode unknown.", ServerOptions},
		{"Unable to write the playlist file.", File},
		{"Unknown command 'Foo'.", UnavailableFeature},
		{"Unknown setting 'S_TimeLimit'.", ServerOptions},
		{"Couldn't load 'MatchSettings/x.txt'.", File},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			err := Classify(tc.msg, -1000)
			if err.Kind != tc.want {
				t.Fatalf("Classify(%q) = %s, want %s", tc.msg, err.Kind, tc.want)
			}
		})
	}
}

func TestClassifyUnknownKeepsOriginal(t *testing.T) {
	err := Classify("Something nobody has seen before.", 42)
	if err.Kind != Generic {
		t.Fatalf("expect generic kind, got %s", err.Kind)
	}
	if err.Message != "Something nobody has seen before." || err.Code != 42 {
		t.Fatalf("fault message/code not preserved: %+v", err)
	}
}

func TestErrorsIs(t *testing.T) {
	var err error = fmt.Errorf("kick: %w", Classify("Login unknown.", -1000))

	if !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected errors.Is to match unknown player")
	}
	if errors.Is(err, ErrLockedFeature) {
		t.Fatalf("unknown player must not match locked feature")
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Code != -1000 {
		t.Fatalf("errors.As failed: %v", err)
	}
}

func TestTableExtension(t *testing.T) {
	tbl := NewTable()
	if k := tbl.Lookup("Custom failure."); k != Generic {
		t.Fatalf("empty table should return generic, got %s", k)
	}

	tbl.Add(LockedFeature, "Custom failure.")
	if err := tbl.AddPattern(File, `^Disk .* full$`); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddPattern(GameMode, `(`); err == nil {
		t.Fatalf("expected invalid pattern error")
	}

	if k := tbl.Lookup("Custom failure."); k != LockedFeature {
		t.Fatalf("got %s, want locked feature", k)
	}
	if k := tbl.Lookup("Disk /dev/sda1 full"); k != File {
		t.Fatalf("got %s, want file", k)
	}
}

func TestExactMatchWinsOverPattern(t *testing.T) {
	tbl := NewTable()
	if err := tbl.AddPattern(File, `.*`); err != nil {
		t.Fatal(err)
	}
	tbl.Add(NextMap, "Exact.")
	if k := tbl.Lookup("Exact."); k != NextMap {
		t.Fatalf("got %s, want next map", k)
	}
}
