package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/worldsync-dev/worldsync/pkg/protocol"
)

type stubSnapshotter struct {
	snap protocol.Snapshot
	err  error
}

func (s stubSnapshotter) Snapshot(ctx context.Context) (protocol.Snapshot, error) {
	return s.snap, s.err
}

type capturedPut struct {
	Bucket string
	Key    string
	Body   string
}

type stubS3 struct {
	mu   sync.Mutex
	puts []capturedPut
	err  error
}

func (s *stubS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	s.puts = append(s.puts, capturedPut{
		Bucket: *params.Bucket,
		Key:    *params.Key,
		Body:   string(body),
	})
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) captured() []capturedPut {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capturedPut, len(s.puts))
	copy(out, s.puts)
	return out
}

func TestCaptureWritesStateFrame(t *testing.T) {
	snap := protocol.NewSnapshot()
	snap.Players[7] = protocol.Position{X: 3, Y: -4}

	stub := &stubS3{}
	arch := NewS3Archive(stub, "world-archive", "snapshots", nil)
	arch.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}

	if err := arch.Capture(context.Background(), stubSnapshotter{snap: snap}); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	puts := stub.captured()
	if len(puts) != 1 {
		t.Fatalf("got %d puts, want 1", len(puts))
	}
	put := puts[0]
	if put.Bucket != "world-archive" {
		t.Errorf("bucket = %q, want %q", put.Bucket, "world-archive")
	}
	if !strings.HasPrefix(put.Key, "snapshots/2026-03-01T12-00-00") {
		t.Errorf("key = %q, want snapshots/<timestamp> prefix", put.Key)
	}

	decoded, err := protocol.ParseState(put.Body)
	if err != nil {
		t.Fatalf("archived body is not a state frame: %v", err)
	}
	if !decoded.Equal(snap) {
		t.Errorf("archived snapshot = %v, want %v", decoded.Players, snap.Players)
	}
}

func TestCapturePropagatesSnapshotError(t *testing.T) {
	stub := &stubS3{}
	arch := NewS3Archive(stub, "world-archive", "", nil)

	wantErr := errors.New("world stopped")
	err := arch.Capture(context.Background(), stubSnapshotter{err: wantErr})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Capture() error = %v, want wrapped %v", err, wantErr)
	}
	if len(stub.captured()) != 0 {
		t.Errorf("snapshot error must not reach storage")
	}
}

func TestCapturePropagatesPutError(t *testing.T) {
	stub := &stubS3{err: errors.New("access denied")}
	arch := NewS3Archive(stub, "world-archive", "snapshots/", nil)

	err := arch.Capture(context.Background(), stubSnapshotter{snap: protocol.NewSnapshot()})
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("Capture() error = %v, want put failure", err)
	}
}

func TestRunCapturesPeriodically(t *testing.T) {
	stub := &stubS3{}
	arch := NewS3Archive(stub, "world-archive", "snapshots/", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		arch.Run(ctx, stubSnapshotter{snap: protocol.NewSnapshot()}, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(stub.captured()) < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for periodic captures")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
