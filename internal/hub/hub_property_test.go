package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any number of connected clients and any message, a broadcast reaches
// every client exactly once with the bytes intact.
func TestBroadcastDeliveryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("broadcast delivers the message to every registered client", prop.ForAll(
		func(numClients int, data string) bool {
			h := New(nil)
			defer h.Close()

			conns := make([]*fakeConn, numClients)
			for i := range conns {
				conns[i] = &fakeConn{}
				h.Register(NewClient(conns[i]))
			}

			h.Broadcast([]byte(data))

			deadline := time.Now().Add(time.Second)
			for _, conn := range conns {
				for {
					msgs := conn.received()
					if len(msgs) == 1 {
						if msgs[0] != data {
							return false
						}
						break
					}
					if len(msgs) > 1 || time.Now().After(deadline) {
						return false
					}
					time.Sleep(time.Millisecond)
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.AnyString(),
	))

	properties.Property("concurrent broadcasts preserve per-client ordering", prop.ForAll(
		func(count int) bool {
			h := New(nil)
			defer h.Close()

			conn := &fakeConn{}
			h.Register(NewClient(conn))

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < count; i++ {
					h.Broadcast([]byte{byte('a' + i%26)})
				}
			}()
			wg.Wait()

			deadline := time.Now().Add(time.Second)
			for len(conn.received()) < count {
				if time.Now().After(deadline) {
					return false
				}
				time.Sleep(time.Millisecond)
			}

			for i, got := range conn.received() {
				if got != string([]byte{byte('a' + i%26)}) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
