package main

import "testing"

func TestIsFlag(t *testing.T) {
	cases := map[string]bool{
		"-worker-id=1":  true,
		"--worker-id=1": true,
		"worker":        false,
		"supervise":     false,
		"":              false,
	}

	for arg, want := range cases {
		if got := isFlag(arg); got != want {
			t.Errorf("isFlag(%q) = %v, want %v", arg, got, want)
		}
	}
}
