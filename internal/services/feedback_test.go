package services

import "testing"

func TestVerdictsEqual(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{
			name: "identical strings",
			a:    `{"skip":true,"reason":"dup"}`,
			b:    `{"skip":true,"reason":"dup"}`,
			want: true,
		},
		{
			name: "different key order",
			a:    `{"skip":true,"reason":"dup"}`,
			b:    `{"reason":"dup","skip":true}`,
			want: true,
		},
		{
			name: "different reason",
			a:    `{"skip":true,"reason":"dup"}`,
			b:    `{"skip":true,"reason":"vague"}`,
			want: false,
		},
		{
			name: "skip vs policy",
			a:    `{"skip":true,"reason":"dup"}`,
			b:    `{"skip":false,"category":"accuracy","rule":"r","priority":"high","rationale":"x"}`,
			want: false,
		},
		{
			name: "stored verdict not json",
			a:    `broken`,
			b:    `{"skip":true,"reason":"dup"}`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verdictsEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("verdictsEqual(%q, %q) = %v, expected %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
