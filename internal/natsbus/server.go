package natsbus

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// Embedded is an in-process NATS server for single-host runs.
type Embedded struct {
	server *natsserver.Server
}

// StartEmbedded starts a NATS server on port. A port of zero picks a free one.
func StartEmbedded(port int) (*Embedded, error) {
	if port == 0 {
		port = natsserver.RANDOM_PORT
	}
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}
	return &Embedded{server: ns}, nil
}

// ClientURL returns the URL clients should dial.
func (e *Embedded) ClientURL() string {
	return e.server.ClientURL()
}

// Close shuts the server down and waits for it.
func (e *Embedded) Close() {
	e.server.Shutdown()
	e.server.WaitForShutdown()
}
