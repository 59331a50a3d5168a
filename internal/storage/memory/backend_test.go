package memory_test

import (
	"testing"

	"github.com/picatz/apistyles/internal/storage"
	"github.com/picatz/apistyles/internal/storage/memory"
	"github.com/picatz/apistyles/internal/storage/storagetest"
)

func TestBackend(t *testing.T) {
	storagetest.BackendSuite(t, memory.NewBackend[string, string]())
	storagetest.RecordSuite(t, memory.NewBackend[string, storage.Record]())
}
