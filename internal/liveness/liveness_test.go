package liveness

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startTestNATS starts an embedded NATS server for testing the
// request-reply liveness probe, grounded on the same pattern the teacher's
// eventbus package uses for its own NATS-backed tests.
func startTestNATS(t *testing.T) (*nats.Conn, func()) {
	t.Helper()

	opts := &natsserver.Options{
		Port:   -1, // random available port
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("create test NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("test NATS server failed to start")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		t.Fatalf("connect to test NATS: %v", err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
	}
	return nc, cleanup
}

func TestNatsAliveRespondsWhenPeerIsListening(t *testing.T) {
	nc, cleanup := startTestNATS(t)
	defer cleanup()

	engineID := "engine-1"
	sub, err := nc.Subscribe(listeningSubj+engineID, func(msg *nats.Msg) {
		msg.Respond([]byte(natsProbeReply))
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	s := &Service{nats: nc, timeout: time.Second}
	if !s.natsAlive(context.Background(), engineID) {
		t.Error("expected natsAlive=true for a subscribed (listening) peer")
	}
}

func TestNatsAliveFalseWhenPeerIsNotListening(t *testing.T) {
	nc, cleanup := startTestNATS(t)
	defer cleanup()

	s := &Service{nats: nc, timeout: 200 * time.Millisecond}
	if s.natsAlive(context.Background(), "engine-nobody-subscribed") {
		t.Error("expected natsAlive=false when nothing is subscribed to the probe subject")
	}
}
