package transport

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestConnection(t *testing.T, wg *sync.WaitGroup) *Connection {
	t.Helper()
	return NewConnection(
		context.Background(),
		wg,
		nil,
		ConnectionConfig{ReadTimeout: time.Minute},
		nil,
		nil,
		testLogger(),
	)
}

func TestSendAfterCloseDrops(t *testing.T) {
	var wg sync.WaitGroup
	c := newTestConnection(t, &wg)

	c.Close(nil)
	// A broadcast racing a disconnect must degrade to a dropped message.
	c.Send([]byte(`{"event":"receiveMessage"}`))

	select {
	case <-c.Done():
	default:
		t.Fatal("connection not marked done after Close")
	}
	wg.Wait()
}

func TestConcurrentSendAndClose(t *testing.T) {
	var wg sync.WaitGroup
	c := newTestConnection(t, &wg)

	var senders sync.WaitGroup
	for i := 0; i < 8; i++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for j := 0; j < 200; j++ {
				c.Send([]byte("x"))
			}
		}()
	}
	c.Close(nil)
	senders.Wait()
	wg.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	var wg sync.WaitGroup
	c := newTestConnection(t, &wg)

	c.Close(nil)
	c.Close(nil)
	wg.Wait()
}
