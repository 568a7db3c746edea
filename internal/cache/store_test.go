package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/subtitle"
)

func sampleEntries() []subtitle.Entry {
	return []subtitle.Entry{
		{Index: 1, Start: time.Second, End: 2 * time.Second, Text: "Hello", TranslatedText: "你好"},
		{Index: 2, Start: 3 * time.Second, End: 4 * time.Second, Text: "Bye", TranslatedText: "再見"},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, ok := store.Lookup(ctx, "hash-a", "fp-1")
	assert.False(t, ok)

	store.Put(ctx, "hash-a", "fp-1", sampleEntries())

	got, ok := store.Lookup(ctx, "hash-a", "fp-1")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "你好", got[0].TranslatedText)
}

func TestMemoryStoreKeyIncludesConfigFingerprint(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	store.Put(ctx, "hash-a", "fp-1", sampleEntries())

	_, ok := store.Lookup(ctx, "hash-a", "fp-2")
	assert.False(t, ok, "a different config fingerprint must miss")
	_, ok = store.Lookup(ctx, "hash-b", "fp-1")
	assert.False(t, ok, "a different content hash must miss")
}

type failingBackend struct{}

func (failingBackend) GetCache(context.Context, string, string) ([]subtitle.Entry, bool, error) {
	return nil, false, fmt.Errorf("database locked")
}

func (failingBackend) PutCache(context.Context, string, string, []subtitle.Entry) error {
	return fmt.Errorf("database locked")
}

func TestStoreDegradesBackendErrorsToMiss(t *testing.T) {
	store := NewStore(failingBackend{})
	ctx := context.Background()

	_, ok := store.Lookup(ctx, "hash-a", "fp-1")
	assert.False(t, ok)

	// Put must not panic or propagate the error
	store.Put(ctx, "hash-a", "fp-1", sampleEntries())
}
