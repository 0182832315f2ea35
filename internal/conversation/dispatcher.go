package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/credgenhq/credgen/pkg/logging"
)

// ErrDispatcherClosed indicates the dispatcher is no longer accepting work.
var ErrDispatcherClosed = errors.New("conversation: dispatcher closed")

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Dispatcher routes conversation work through a queue before invoking
// the engine. HTTP handlers stay thin and the worker count caps how many
// sessions are being advanced concurrently; the store's per-id locking
// keeps each individual session single-writer.
type Dispatcher struct {
	engine Service
	queue  queueClient
	logger *logging.Logger

	cfg dispatcherConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pending sync.Map // jobID -> chan dispatchResult
}

var _ Service = (*Dispatcher)(nil)

const (
	defaultWorkers     = 2
	defaultReceiveWait = 2 // seconds
	defaultReceiveMax  = 5 // messages
)

type dispatcherConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*dispatcherConfig)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if workers > 0 {
			cfg.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the poll wait time for Receive calls.
func WithReceiveWaitSeconds(seconds int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if seconds >= 0 {
			cfg.receiveWaitSecs = seconds
		}
	}
}

// NewDispatcher wires a queue-backed dispatcher around the engine.
func NewDispatcher(engine Service, queue queueClient, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := dispatcherConfig{
		workers:          defaultWorkers,
		receiveWaitSecs:  defaultReceiveWait,
		receiveBatchSize: defaultReceiveMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		engine: engine,
		queue:  queue,
		logger: logger,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(i + 1)
	}

	return d
}

// ProcessTurn enqueues the turn and blocks until a worker completes it.
func (d *Dispatcher) ProcessTurn(ctx context.Context, req TurnRequest) (*Response, error) {
	return d.enqueue(ctx, jobPayload{Kind: jobTypeTurn, Turn: req})
}

// RunStage enqueues a stage trigger and blocks until a worker completes it.
func (d *Dispatcher) RunStage(ctx context.Context, req StageRequest) (*Response, error) {
	return d.enqueue(ctx, jobPayload{Kind: jobTypeStage, Stage: req.Stage, Negotiate: req.Negotiate, SessionID: req.SessionID})
}

// Reset enqueues a session reset and blocks until a worker completes it.
func (d *Dispatcher) Reset(ctx context.Context, sessionID string) (*Response, error) {
	return d.enqueue(ctx, jobPayload{Kind: jobTypeReset, SessionID: sessionID})
}

// Shutdown stops worker goroutines and notifies any pending callers.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	d.pending.Range(func(key, value any) bool {
		if ch, ok := value.(chan dispatchResult); ok {
			select {
			case ch <- dispatchResult{err: ErrDispatcherClosed}:
			default:
			}
		}
		d.pending.Delete(key)
		return true
	})

	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, payload jobPayload) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload.ID = uuid.NewString()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to encode job: %w", err)
	}

	resultCh := make(chan dispatchResult, 1)
	d.pending.Store(payload.ID, resultCh)
	defer d.pending.Delete(payload.ID)

	if err := d.queue.Send(ctx, string(body)); err != nil {
		return nil, fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.response, res.err
	}
}

func (d *Dispatcher) runWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("dispatcher worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug("dispatcher worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := d.queue.Receive(d.ctx, d.cfg.receiveBatchSize, d.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			d.handleQueueMessage(msg)
		}
	}
}

func (d *Dispatcher) handleQueueMessage(msg queueMessage) {
	var payload jobPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		d.logger.Error("failed to decode conversation job", "error", err)
		d.deleteMessage(msg.ReceiptHandle)
		return
	}

	var (
		resp *Response
		err  error
	)

	switch payload.Kind {
	case jobTypeTurn:
		resp, err = d.engine.ProcessTurn(d.ctx, payload.Turn)
	case jobTypeStage:
		resp, err = d.engine.RunStage(d.ctx, StageRequest{
			SessionID: payload.SessionID,
			Stage:     payload.Stage,
			Negotiate: payload.Negotiate,
		})
	case jobTypeReset:
		resp, err = d.engine.Reset(d.ctx, payload.SessionID)
	default:
		err = fmt.Errorf("conversation: unknown job type %q", payload.Kind)
	}

	d.deleteMessage(msg.ReceiptHandle)
	d.deliverResult(payload.ID, resp, err)
}

func (d *Dispatcher) deleteMessage(receiptHandle string) {
	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.queue.Delete(deleteCtx, receiptHandle); err != nil {
		d.logger.Error("failed to delete conversation job", "error", err)
	}
}

func (d *Dispatcher) deliverResult(jobID string, resp *Response, err error) {
	value, ok := d.pending.Load(jobID)
	if !ok {
		d.logger.Debug("no waiting caller for conversation job", "job_id", jobID)
		return
	}

	ch, ok := value.(chan dispatchResult)
	if !ok {
		d.logger.Error("dispatcher pending map corrupted", "job_id", jobID)
		d.pending.Delete(jobID)
		return
	}

	select {
	case ch <- dispatchResult{response: resp, err: err}:
	default:
	}
}

type jobType string

const (
	jobTypeTurn  jobType = "turn"
	jobTypeStage jobType = "stage"
	jobTypeReset jobType = "reset"
)

type jobPayload struct {
	ID        string      `json:"id"`
	Kind      jobType     `json:"kind"`
	Turn      TurnRequest `json:"turn,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Stage     string      `json:"stage,omitempty"`
	Negotiate bool        `json:"negotiate,omitempty"`
}

type dispatchResult struct {
	response *Response
	err      error
}
