package main

import "testing"

func TestShortRev(t *testing.T) {
	if got := shortRev("0123456789abcdef"); got != "0123456" {
		t.Fatalf("short rev = %q", got)
	}
	if got := shortRev("abc"); got != "abc" {
		t.Fatalf("short rev = %q", got)
	}
}

func TestResolveBuildKeepsExplicitValues(t *testing.T) {
	rev, date := resolveBuild("feedbee", "2026-01-02")
	if rev != "feedbee" || date != "2026-01-02" {
		t.Fatalf("rev=%q date=%q", rev, date)
	}
}
