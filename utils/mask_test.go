package utils

import "testing"

func TestMaskHalfInt64(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{123456789, "1234*****"},
		{123456, "123***"},
		{12, "**"},
		{7, "**"},
		{0, "**"},
		{-123456, "-123***"},
	}
	for _, tt := range tests {
		if got := MaskHalfInt64(tt.in); got != tt.want {
			t.Errorf("MaskHalfInt64(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
