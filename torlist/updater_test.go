package torlist

import (
	"reflect"
	"testing"
)

func TestIsValidIPv4(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want bool
	}{
		{"valid address", "185.220.101.1", true},
		{"leading zero in octet", "185.220.101.01", false},
		{"octet out of range", "185.220.101.999", false},
		{"too few octets", "185.220.101", false},
		{"empty octet", "185.220..1", false},
		{"zero itself is fine", "0.0.0.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidIPv4(tt.addr); got != tt.want {
				t.Errorf("isValidIPv4(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestParseExitList(t *testing.T) {
	body := "185.220.101.1\n# a comment\n\n185.220.101.2\nnot-an-ip\n185.220.101.03\n  185.220.101.3  \n"
	got := parseExitList(body)
	want := []string{"185.220.101.1", "185.220.101.2", "185.220.101.3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseExitList() = %v, want %v", got, want)
	}
}

func TestParseExitList_Empty(t *testing.T) {
	if got := parseExitList(""); len(got) != 0 {
		t.Errorf("parseExitList(\"\") = %v, want empty", got)
	}
}
