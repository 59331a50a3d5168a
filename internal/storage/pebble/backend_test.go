package pebble_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/picatz/apistyles/internal/storage"
	backendPebble "github.com/picatz/apistyles/internal/storage/pebble"
	"github.com/picatz/apistyles/internal/storage/storagetest"
	"github.com/shoenig/test/must"
)

func TestBackend_dir(t *testing.T) {
	b, err := backendPebble.NewBackend(t.TempDir(), nil, &storage.StringKeyCodec[string, string]{})
	must.NoError(t, err)
	must.NotNil(t, b)
	t.Cleanup(func() { b.Close(t.Context()) })

	storagetest.BackendSuite(t, b)
}

func TestBackend_mem_vfs(t *testing.T) {
	opts := &pebble.Options{
		FS: vfs.NewMem(),
	}

	b, err := backendPebble.NewBackend("", opts, &storage.StringKeyCodec[string, string]{})
	must.NoError(t, err)
	must.NotNil(t, b)

	storagetest.BackendSuite(t, b)
}

func TestBackend_mem_vfs_records(t *testing.T) {
	opts := &pebble.Options{
		FS: vfs.NewMem(),
	}

	b, err := backendPebble.NewBackend("", opts, &storage.StringKeyCodec[string, storage.Record]{})
	must.NoError(t, err)

	storagetest.RecordSuite(t, b)
}

func TestBackend_json_codec_no_prefix(t *testing.T) {
	opts := &pebble.Options{
		FS: vfs.NewMem(),
	}

	b, err := backendPebble.NewBackend("", opts, &storage.JSONCodec[string, string]{})
	must.NoError(t, err)

	must.NoError(t, b.Set(t.Context(), "a", "b"))
	_, err = b.Scan(t.Context(), "a")
	must.ErrorIs(t, err, storage.ErrPrefixUnsupported)
}

var _ pebble.LoggerAndTracer = (*backendPebble.Logger)(nil)

func TestBackend_slog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts := &pebble.Options{
		FS:              vfs.NewMem(),
		LoggerAndTracer: backendPebble.NewLogger(logger),
	}

	b, err := backendPebble.NewBackend("", opts, &storage.StringKeyCodec[string, string]{})
	must.NoError(t, err)
	must.NoError(t, b.Set(t.Context(), "k", "v"))
	must.NoError(t, b.Close(t.Context()))

	backendPebble.NewLogger(logger).Errorf("compaction %d failed", 7)
	must.StrContains(t, buf.String(), "component=pebble")
	must.StrContains(t, buf.String(), `msg="compaction 7 failed"`)
}
