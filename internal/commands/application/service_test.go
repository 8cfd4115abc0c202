package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	commands "plantops-cloud/internal/commands/domain"
	statesapp "plantops-cloud/internal/devicestate/application"
	devicestate "plantops-cloud/internal/devicestate/domain"
	memoryrepo "plantops-cloud/internal/devicestate/infrastructure/memory"
)

type capturingPublisher struct {
	mu       sync.Mutex
	messages []commands.ControlMessage
	fail     bool
}

func (p *capturingPublisher) PublishControl(_ context.Context, msg commands.ControlMessage) error {
	if p.fail {
		return errors.New("bus unavailable")
	}
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	return nil
}

type capturingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *capturingNotifier) Post(message string) {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
}

func newFixture(t *testing.T) (*Service, *statesapp.Service, *capturingPublisher) {
	t.Helper()
	states, err := statesapp.NewService(memoryrepo.NewStateRepository(), memoryrepo.NewStateRepository(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	publisher := &capturingPublisher{}
	svc, err := NewService(states, publisher, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return svc, states, publisher
}

func TestIssueMarksPendingAndPublishesWireShape(t *testing.T) {
	svc, states, publisher := newFixture(t)
	ctx := context.Background()

	result, err := svc.Issue(ctx, devicestate.KindPump, "27", []commands.ActuatorCommand{
		{ID: "pump-1", Name: "Intake Pump", Status: true},
		{ID: "pump-2", Name: "Sludge Pump", Status: false},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(result.MessageID, "cmd-") {
		t.Fatalf("unexpected message id %q", result.MessageID)
	}

	for _, id := range []string{"pump-1", "pump-2"} {
		state, err := states.Get(ctx, devicestate.KindPump, "27", id)
		if err != nil {
			t.Fatal(err)
		}
		if !state.Pending {
			t.Fatalf("%s: expected pending after issue", id)
		}
		if state.Status {
			t.Fatalf("%s: confirmed status must stay untouched on issue", id)
		}
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.messages) != 1 {
		t.Fatalf("expected one control message, got %d", len(publisher.messages))
	}
	wire := publisher.messages[0]
	if wire.DeviceID != "27" || len(wire.Pumps) != 2 {
		t.Fatalf("unexpected wire message %+v", wire)
	}
	if wire.Pumps[0].Status != 1 || wire.Pumps[1].Status != 0 {
		t.Fatalf("status must be numeric 1/0 on the wire, got %+v", wire.Pumps)
	}
}

func TestIssueValidation(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.Issue(ctx, devicestate.KindPump, "", []commands.ActuatorCommand{{ID: "p"}}); err == nil {
		t.Error("expected error for empty device id")
	}
	if _, err := svc.Issue(ctx, devicestate.KindPump, "27", nil); err == nil {
		t.Error("expected error for empty actuator list")
	}
	if _, err := svc.Issue(ctx, devicestate.KindPump, "27", []commands.ActuatorCommand{{Name: "x"}}); err == nil {
		t.Error("expected error for actuator without id")
	}
	if _, err := svc.Issue(ctx, "thermostat", "27", []commands.ActuatorCommand{{ID: "p"}}); err == nil {
		t.Error("expected error for invalid kind")
	}
}

func TestIssuePublishFailureSurfaces(t *testing.T) {
	svc, states, publisher := newFixture(t)
	publisher.fail = true
	ctx := context.Background()

	_, err := svc.Issue(ctx, devicestate.KindPump, "27", []commands.ActuatorCommand{{ID: "pump-1", Status: true}})
	if err == nil {
		t.Fatal("expected publish failure to surface")
	}

	// The pending flag stays set; the sweep is responsible for it.
	state, err := states.Get(ctx, devicestate.KindPump, "27", "pump-1")
	if err != nil {
		t.Fatal(err)
	}
	if !state.Pending {
		t.Fatal("pending flag must survive a failed publish")
	}
}

func TestHandleAckConfirmsAndClearsPending(t *testing.T) {
	svc, states, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.Issue(ctx, devicestate.KindPump, "27", []commands.ActuatorCommand{{ID: "pump-1", Status: true}}); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleAck(ctx, "27", []commands.ActuatorAck{{ID: "pump-1", Status: true}}); err != nil {
		t.Fatal(err)
	}

	state, err := states.Get(ctx, devicestate.KindPump, "27", "pump-1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Pending || !state.Status {
		t.Fatalf("after ack: want pending=false status=true, got %+v", state)
	}
}

func TestSweepTimeoutsClearsStalePendingAndNotifies(t *testing.T) {
	states, err := statesapp.NewService(memoryrepo.NewStateRepository(), memoryrepo.NewStateRepository(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	notifier := &capturingNotifier{}
	svc, err := NewService(states, &capturingPublisher{}, nil, nil,
		WithNotifier(notifier), WithPendingTTL(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := svc.Issue(ctx, devicestate.KindPump, "27", []commands.ActuatorCommand{{ID: "pump-1", Status: true}}); err != nil {
		t.Fatal(err)
	}

	// Before the TTL elapses nothing is swept.
	n, err := svc.SweepTimeouts(ctx, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("premature sweep cleared %d entries", n)
	}

	n, err = svc.SweepTimeouts(ctx, time.Now().UTC().Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one cleared entry, got %d", n)
	}

	state, err := states.Get(ctx, devicestate.KindPump, "27", "pump-1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Pending {
		t.Fatal("sweep did not clear the pending flag")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "pump-1") {
		t.Fatalf("unexpected notifications %v", notifier.messages)
	}
}
