package badgerdb

import (
	"bytes"
	"context"
	"testing"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/storage/storagetest"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestBadgerStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) ports.LogStore { return openInMemory(t) })
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.AppendLog(ctx, storagetest.NewLog(3, domain.Some(true)))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.GetLog(ctx, id)
	if err != nil {
		t.Fatalf("GetLog() after reopen error = %v", err)
	}
	if got.VerdictLabel() != "bot" {
		t.Errorf("VerdictLabel() = %q", got.VerdictLabel())
	}
}

func TestTimeKeyOrdersNewestFirst(t *testing.T) {
	at := func(n int, id domain.LogID) *domain.VerificationLog {
		l := storagetest.NewLog(n, domain.None[bool]())
		l.ID = id
		return l
	}

	tests := []struct {
		name          string
		first, second *domain.VerificationLog
	}{
		{name: "newer timestamp first", first: at(2, "a"), second: at(1, "b")},
		{name: "same timestamp, higher id first", first: at(1, "b"), second: at(1, "a")},
		{name: "same timestamp, longer id first", first: at(1, "ab"), second: at(1, "a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if bytes.Compare(timeKey(tt.first), timeKey(tt.second)) >= 0 {
				t.Errorf("timeKey(%s) = %q should sort before %q", tt.first.ID, timeKey(tt.first), timeKey(tt.second))
			}
		})
	}
}
