package utils

import "testing"

func TestBuildUsersListCacheKey(t *testing.T) {
	if got := BuildUsersListCacheKey(""); got != "users:list:v1:q=" {
		t.Fatalf("unexpected key for empty filter: %q", got)
	}

	// separators inside the filter must not collide with the key layout
	if BuildUsersListCacheKey("a:b") == BuildUsersListCacheKey("a%3Ab") {
		t.Fatalf("distinct filters share a cache key")
	}
}
