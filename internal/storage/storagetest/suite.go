// Package storagetest holds the conformance suite every storage backend runs.
package storagetest

import (
	"maps"
	"testing"

	"github.com/picatz/apistyles/internal/storage"
	"github.com/shoenig/test/must"
)

// BackendSuite tests a backend implementation of the storage package, using
// the provided backend instance to perform the tests.
func BackendSuite(t *testing.T, backend storage.Backend[string, string]) {
	t.Helper()

	ctx := t.Context()

	value, ok, err := backend.Get(ctx, "missing")
	must.NoError(t, err)
	must.False(t, ok)
	must.Eq(t, "", value)

	for k, v := range map[string]string{"b/1": "three", "a/2": "two", "a/1": "one"} {
		must.NoError(t, backend.Set(ctx, k, v))
	}

	value, ok, err = backend.Get(ctx, "a/2")
	must.NoError(t, err)
	must.True(t, ok)
	must.Eq(t, "two", value)

	must.NoError(t, backend.Set(ctx, "a/2", "two again"))
	value, _, err = backend.Get(ctx, "a/2")
	must.NoError(t, err)
	must.Eq(t, "two again", value)

	entries, next, err := backend.List(ctx, storage.PageSize(2), nil)
	must.NoError(t, err)
	must.NotNil(t, next)
	must.Eq(t, "b/1", *next)

	var keys []string
	for key := range entries {
		keys = append(keys, key)
	}
	must.Eq(t, []string{"a/1", "a/2"}, keys)

	entries, next, err = backend.List(ctx, storage.PageSize(2), next)
	must.NoError(t, err)
	must.Nil(t, next)
	page := maps.Collect(entries)
	must.Eq(t, map[string]string{"b/1": "three"}, page)

	scanned, err := backend.Scan(ctx, "a/")
	must.NoError(t, err)
	must.Eq(t, map[string]string{"a/1": "one", "a/2": "two again"}, maps.Collect(scanned))

	must.NoError(t, backend.DeletePrefix(ctx, "a/"))
	scanned, err = backend.Scan(ctx, "a/")
	must.NoError(t, err)
	must.MapEmpty(t, maps.Collect(scanned))

	must.NoError(t, backend.Delete(ctx, "b/1"))
	_, ok, err = backend.Get(ctx, "b/1")
	must.NoError(t, err)
	must.False(t, ok)

	must.NoError(t, backend.Flush(ctx))
}

// RecordSuite checks that transcript records survive a round trip through the
// backend and come back grouped by conversation.
func RecordSuite(t *testing.T, backend storage.Backend[string, storage.Record]) {
	t.Helper()

	ctx := t.Context()
	log := storage.NewTranscript(backend)

	first, err := log.Append(ctx, storage.Record{
		Style:        "chat",
		Model:        "gpt-5-mini",
		Conversation: "c1",
		Request:      "What's the weather in Paris?",
		Response:     "Rainy, 17C.",
		ToolCalls:    []storage.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Paris"}`, Output: `{"temp_c":17}`}},
		HistoryLen:   4,
	})
	must.NoError(t, err)
	must.StrHasPrefix(t, "c1/", first)

	_, err = log.Append(ctx, storage.Record{Style: "responses", Conversation: "c2", Request: "hi", ResponseID: "resp_1"})
	must.NoError(t, err)

	_, err = log.Append(ctx, storage.Record{Style: "chat", Conversation: "c1", Request: "Umbrella?"})
	must.NoError(t, err)

	records, err := log.Conversation(ctx, "c1")
	must.NoError(t, err)
	must.SliceLen(t, 2, records)
	must.Eq(t, "What's the weather in Paris?", records[0].Request)
	must.Eq(t, "Umbrella?", records[1].Request)
	must.Eq(t, "get_weather", records[0].ToolCalls[0].Name)
	must.False(t, records[0].CreatedAt.IsZero())

	ids, err := log.Conversations(ctx)
	must.NoError(t, err)
	must.Eq(t, []string{"c1", "c2"}, ids)

	must.NoError(t, log.Forget(ctx, "c1"))
	records, err = log.Conversation(ctx, "c1")
	must.NoError(t, err)
	must.SliceEmpty(t, records)
}
