package natsgw

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Connect dials a NATS server with reconnect behavior suited to a
// long-lived daemon: unlimited reconnect attempts with a fixed 2-second
// wait between them, so a transient broker restart does not require
// restarting agentrund.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(10*time.Second),
		nats.Name("agentrund"),
	)
}
