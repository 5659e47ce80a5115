// Package jetstream runs the embedded NATS server that queues workflow run
// outcomes between the request path and the run-log writer.
package jetstream

import (
	"fmt"
	"strings"
	"time"

	server "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
)

const (
	StreamName       = "WAZA"
	runSubjectPrefix = "waza.run."

	// RunSubjectWildcard matches every run-completed message.
	RunSubjectWildcard = runSubjectPrefix + ">"
)

// RunSubject is the subject a single invocation's outcome is published on.
func RunSubject(requestID string) string {
	return runSubjectPrefix + requestID
}

type Server struct{ ns *server.Server }

// NewServer starts an in-process NATS server with JetStream enabled. It does
// not listen on any socket; clients connect in-process only.
func NewServer(storeDir string) (*Server, error) {
	ns, err := server.NewServer(&server.Options{
		DontListen: true,
		JetStream:  true,
		StoreDir:   storeDir,
	})
	if err != nil {
		return nil, err
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("NATS server not ready")
	}
	return &Server{ns: ns}, nil
}

func (s *Server) Connect() (*nats.Conn, error) {
	return nats.Connect(s.ns.ClientURL(), nats.InProcessServer(s.ns))
}

func (s *Server) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

// EnsureStream creates the run-outcome stream if it does not exist yet.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"waza.>"},
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}
