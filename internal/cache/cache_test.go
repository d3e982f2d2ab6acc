package cache

import (
	"strings"
	"testing"

	"github.com/deskwise/kbsearch/internal/kb"
	"github.com/deskwise/kbsearch/pkg/config"
)

func TestBuildKeyNormalization(t *testing.T) {
	c := New(nil, config.RedisConfig{})

	base := c.buildKey(kb.SearchFilters{Query: "printer offline", TagIDs: []string{"a", "b"}}, 1, 10)

	// Tag order and query whitespace/case must not change the key.
	same := []kb.SearchFilters{
		{Query: "printer offline", TagIDs: []string{"b", "a"}},
		{Query: "  Printer Offline  ", TagIDs: []string{"a", "b"}},
	}
	for _, filters := range same {
		if got := c.buildKey(filters, 1, 10); got != base {
			t.Errorf("key for %+v diverged from base", filters)
		}
	}

	// Any semantic difference must change the key.
	different := []struct {
		name     string
		filters  kb.SearchFilters
		page     int
		pageSize int
	}{
		{"query", kb.SearchFilters{Query: "printer jam", TagIDs: []string{"a", "b"}}, 1, 10},
		{"tags", kb.SearchFilters{Query: "printer offline", TagIDs: []string{"a"}}, 1, 10},
		{"type", kb.SearchFilters{Query: "printer offline", TagIDs: []string{"a", "b"}, Type: "article"}, 1, 10},
		{"status", kb.SearchFilters{Query: "printer offline", TagIDs: []string{"a", "b"}, Status: "published"}, 1, 10},
		{"page", kb.SearchFilters{Query: "printer offline", TagIDs: []string{"a", "b"}}, 2, 10},
		{"page size", kb.SearchFilters{Query: "printer offline", TagIDs: []string{"a", "b"}}, 1, 20},
	}
	for _, tt := range different {
		if got := c.buildKey(tt.filters, tt.page, tt.pageSize); got == base {
			t.Errorf("%s change did not change the key", tt.name)
		}
	}
}

func TestBuildKeyPrefix(t *testing.T) {
	c := New(nil, config.RedisConfig{})
	key := c.buildKey(kb.SearchFilters{}, 1, 10)
	if !strings.HasPrefix(key, keyPrefix) {
		t.Errorf("key %q lacks prefix %q", key, keyPrefix)
	}
	// Invalidation flushes by this prefix; every key must fall under it.
	if len(key) != len(keyPrefix)+32 {
		t.Errorf("unexpected key length: %q", key)
	}
}

func TestBuildKeyDoesNotMutateFilters(t *testing.T) {
	c := New(nil, config.RedisConfig{})
	filters := kb.SearchFilters{TagIDs: []string{"z", "a"}}
	c.buildKey(filters, 1, 10)
	if filters.TagIDs[0] != "z" || filters.TagIDs[1] != "a" {
		t.Errorf("buildKey reordered the caller's tags: %v", filters.TagIDs)
	}
}
