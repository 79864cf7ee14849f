package reputation

import "testing"

func TestIpToUint32(t *testing.T) {
	tests := []struct {
		name string
		addr string
		ok   bool
	}{
		{"valid address", "192.168.1.1", true},
		{"all zeros", "0.0.0.0", true},
		{"all max", "255.255.255.255", true},
		{"too few octets", "192.168.1", false},
		{"too many octets", "192.168.1.1.1", false},
		{"octet out of range", "192.168.1.256", false},
		{"non-numeric octet", "192.168.1.x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ipToUint32(tt.addr)
			if ok != tt.ok {
				t.Errorf("ipToUint32(%q) ok = %v, want %v", tt.addr, ok, tt.ok)
			}
		})
	}
}

func TestParseCIDR(t *testing.T) {
	tests := []struct {
		name string
		cidr string
		ok   bool
	}{
		{"slash 24", "10.0.0.0/24", true},
		{"slash 0", "0.0.0.0/0", true},
		{"slash 32", "10.0.0.1/32", true},
		{"missing prefix", "10.0.0.0", false},
		{"prefix too large", "10.0.0.0/33", false},
		{"negative prefix", "10.0.0.0/-1", false},
		{"malformed base", "not-an-ip/24", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := parseCIDR(tt.cidr)
			if ok != tt.ok {
				t.Errorf("parseCIDR(%q) ok = %v, want %v", tt.cidr, ok, tt.ok)
			}
		})
	}
}

func TestCidrContains(t *testing.T) {
	tests := []struct {
		name    string
		cidr    string
		address string
		want    bool
	}{
		{"member within /24", "10.0.0.0/24", "10.0.0.200", true},
		{"outside /24", "10.0.0.0/24", "10.0.1.1", false},
		{"exact /32 match", "10.0.0.5/32", "10.0.0.5", true},
		{"exact /32 mismatch", "10.0.0.5/32", "10.0.0.6", false},
		{"slash 0 matches everything", "0.0.0.0/0", "1.2.3.4", true},
		{"boundary: lowest address in block", "10.0.0.0/24", "10.0.0.0", true},
		{"boundary: highest address in block", "10.0.0.0/24", "10.0.0.255", true},
		{"malformed cidr never matches", "garbage", "10.0.0.1", false},
		{"malformed address never matches", "10.0.0.0/24", "garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cidrContains(tt.cidr, tt.address); got != tt.want {
				t.Errorf("cidrContains(%q, %q) = %v, want %v", tt.cidr, tt.address, got, tt.want)
			}
		})
	}
}
