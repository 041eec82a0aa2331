package util

import (
	"reflect"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("CARBOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("CARBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("CARBOT_TEST_DUR", "90s")
	if got := ParseDurationEnv("CARBOT_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("got %v", got)
	}
	t.Setenv("CARBOT_TEST_DUR", "soon")
	if got := ParseDurationEnv("CARBOT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("invalid value should fall back, got %v", got)
	}
	t.Setenv("CARBOT_TEST_DUR", "-5s")
	if got := ParseDurationEnv("CARBOT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("negative value should fall back, got %v", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" 5511999990000, ;5511988880000 ;")
	want := []string{"5511999990000", "5511988880000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList = %v, want %v", got, want)
	}
	if got := SplitList(""); len(got) != 0 {
		t.Errorf("SplitList(\"\") = %v", got)
	}
}
