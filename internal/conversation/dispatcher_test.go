package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/credgenhq/credgen/internal/session"
)

type stubService struct {
	mu    sync.Mutex
	turns []TurnRequest
	resp  *Response
	err   error
}

func (s *stubService) ProcessTurn(ctx context.Context, req TurnRequest) (*Response, error) {
	s.mu.Lock()
	s.turns = append(s.turns, req)
	s.mu.Unlock()
	return s.resp, s.err
}

func (s *stubService) RunStage(ctx context.Context, req StageRequest) (*Response, error) {
	return s.resp, s.err
}

func (s *stubService) Reset(ctx context.Context, sessionID string) (*Response, error) {
	return &Response{SessionID: sessionID, State: session.StateGreeting}, nil
}

func newTestDispatcher(svc Service) *Dispatcher {
	return NewDispatcher(svc, NewMemoryQueue(16), nil, WithWorkerCount(2), WithReceiveWaitSeconds(0))
}

func TestDispatcherRoundTripsTurn(t *testing.T) {
	svc := &stubService{resp: &Response{SessionID: "app-1", Message: "ok", State: session.StateCollectingInfo}}
	d := newTestDispatcher(svc)
	defer d.Shutdown(context.Background())

	resp, err := d.ProcessTurn(context.Background(), TurnRequest{SessionID: "app-1", Message: "hi"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if resp.Message != "ok" {
		t.Errorf("response = %+v", resp)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.turns) != 1 || svc.turns[0].Message != "hi" {
		t.Errorf("engine saw turns %+v", svc.turns)
	}
}

func TestDispatcherPropagatesEngineError(t *testing.T) {
	svc := &stubService{err: ErrStageNotReady}
	d := newTestDispatcher(svc)
	defer d.Shutdown(context.Background())

	_, err := d.RunStage(context.Background(), StageRequest{SessionID: "app-1", Stage: ActionFraud})
	if !errors.Is(err, ErrStageNotReady) {
		t.Errorf("err = %v, want ErrStageNotReady", err)
	}
}

func TestDispatcherRoundTripsReset(t *testing.T) {
	svc := &stubService{}
	d := newTestDispatcher(svc)
	defer d.Shutdown(context.Background())

	resp, err := d.Reset(context.Background(), "app-9")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if resp.SessionID != "app-9" || resp.State != session.StateGreeting {
		t.Errorf("response = %+v", resp)
	}
}

func TestDispatcherConcurrentCallers(t *testing.T) {
	svc := &stubService{resp: &Response{Message: "ok", State: session.StateCollectingInfo}}
	d := newTestDispatcher(svc)
	defer d.Shutdown(context.Background())

	const callers = 16
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := d.ProcessTurn(context.Background(), TurnRequest{SessionID: "app-1", Message: "hi"})
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.turns) != callers {
		t.Errorf("engine saw %d turns, want %d", len(svc.turns), callers)
	}
}

func TestDispatcherShutdownRejectsNewWork(t *testing.T) {
	svc := &stubService{resp: &Response{Message: "ok"}}
	d := newTestDispatcher(svc)

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := d.ProcessTurn(ctx, TurnRequest{SessionID: "app-1", Message: "hi"})
	if err == nil {
		t.Fatal("expected an error after shutdown")
	}
}
