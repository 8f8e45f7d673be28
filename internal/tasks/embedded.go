package tasks

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// StartEmbeddedServer runs an in-process nats-server with JetStream
// enabled. Used for single-binary deployments and tests; production
// setups point Queue.URL at an external cluster instead.
func StartEmbeddedServer(storeDir string) (*natsserver.Server, error) {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  storeDir,
	}

	server, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}

	go server.Start()
	if !server.ReadyForConnections(10 * time.Second) {
		server.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready")
	}
	return server, nil
}
