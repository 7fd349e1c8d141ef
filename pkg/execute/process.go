package execute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
)

// ProcTaskCommand is the hidden CLI subcommand children run. The parent
// spawns its own executable with this argument plus --task <name>.
const ProcTaskCommand = "_taskproc"

// procRequest and procResponse are the JSON-lines frames exchanged with
// a child. One request is outstanding per child at a time, so responses
// pair with requests positionally.
type procRequest struct {
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input"`
}

type procResponse struct {
	ID       string          `json:"id"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// ProcPool dispatches items to a fixed pool of child OS processes for
// CPU-bound or crash-isolated work. Items cross the process boundary as
// JSON, so payloads must be fully self-contained values; the processor
// is identified by registered name, never by closure.
type ProcPool struct {
	// Task is the registered processor name resolved inside each child.
	Task string

	// Workers is the child count. Default max(1, NumCPU-1).
	Workers int

	Timeout time.Duration
	Logger  *zap.Logger

	// spawn overrides child creation in tests.
	spawn func() (*exec.Cmd, error)
}

// Run executes every item and returns results in input order. A child
// that dies mid-item fails that item and retires its slot; items no
// slot could execute are reported as failed results, never dropped.
func (p *ProcPool) Run(ctx context.Context, items []Item) []Result {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = defaultProcWorkers()
	}
	if workers > len(items) && len(items) > 0 {
		workers = len(items)
	}

	tracker := NewTracker(len(items), logger)
	results := make([]Result, len(items))
	dispatched := make([]bool, len(items))

	// Pre-filled and buffered so feeding never blocks: when every slot
	// retires early the remainder simply stays in the channel for the
	// sweep below.
	indexCh := make(chan int, len(items))
	for i := range items {
		indexCh <- i
	}
	close(indexCh)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.runSlot(ctx, slot, items, indexCh, results, dispatched, tracker, logger)
		}(w)
	}
	wg.Wait()

	// Items never dispatched (cancellation, or every slot retired).
	for i, item := range items {
		if !dispatched[i] {
			results[i] = Result{ItemID: item.ID, Error: "not executed: no process worker available"}
			tracker.ItemDone(item.ID, false, 0)
		}
	}

	tracker.logSummary(ModeProcess)
	return results
}

// runSlot owns one child process and feeds it items until the channel
// drains or the child becomes unusable.
func (p *ProcPool) runSlot(ctx context.Context, slot int, items []Item, indexCh <-chan int, results []Result, dispatched []bool, tracker *Tracker, logger *zap.Logger) {
	cmd, stdin, stdout, err := p.startChild()
	if err != nil {
		logger.Error("failed to start process worker",
			zap.Int("slot", slot),
			zap.Error(err))
		return
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		_ = stdin.Close()
		_ = cmd.Wait()
	}()

	// Kill the child on cancellation so a processor that ignores its
	// context cannot leave the parent blocked in Decode.
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
		case <-done:
		}
	}()

	enc := json.NewEncoder(stdin)
	dec := json.NewDecoder(stdout)

	for {
		var idx int
		select {
		case <-ctx.Done():
			return
		case i, ok := <-indexCh:
			if !ok {
				return
			}
			idx = i
		}

		item := items[idx]
		dispatched[idx] = true
		if err := enc.Encode(procRequest{ID: item.ID, Input: item.Input}); err != nil {
			results[idx] = Result{ItemID: item.ID, Error: "process worker write: " + err.Error()}
			tracker.ItemDone(item.ID, false, 0)
			logger.Warn("process worker retired",
				zap.Int("slot", slot),
				zap.Error(err))
			return
		}

		var resp procResponse
		if err := dec.Decode(&resp); err != nil {
			// Child died mid-item (crash isolation working as intended):
			// fail the in-flight item and retire the slot.
			results[idx] = Result{ItemID: item.ID, Error: "process worker exited: " + err.Error()}
			tracker.ItemDone(item.ID, false, 0)
			logger.Warn("process worker retired",
				zap.Int("slot", slot),
				zap.Error(err))
			return
		}

		res := Result{
			ItemID:   item.ID,
			Success:  resp.Error == "",
			Output:   resp.Output,
			Error:    resp.Error,
			Duration: resp.Duration,
		}
		results[idx] = res
		tracker.ItemDone(item.ID, res.Success, res.Duration)
	}
}

func (p *ProcPool) startChild() (*exec.Cmd, io.WriteCloser, io.Reader, error) {
	var cmd *exec.Cmd
	if p.spawn != nil {
		c, err := p.spawn()
		if err != nil {
			return nil, nil, nil, err
		}
		cmd = c
	} else {
		exe, err := os.Executable()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolve executable: %w", err)
		}
		args := []string{ProcTaskCommand, "--task", p.Task}
		if p.Timeout > 0 {
			args = append(args, "--timeout", p.Timeout.String())
		}
		cmd = exec.Command(exe, args...)
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, nil, nil, fmt.Errorf("start process worker: %w", err)
	}
	return cmd, stdin, stdout, nil
}

// ServeWorker is the child side of the process strategy: it reads
// requests from in, runs them through proc, and writes one response per
// request to out. It returns when in reaches EOF.
//
// Anything the processor prints must go to stderr; stdout carries the
// framing exclusively.
func ServeWorker(ctx context.Context, proc job.Processor, timeout time.Duration, in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	enc := json.NewEncoder(out)

	for {
		var req procRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}

		res := runItem(ctx, proc, timeout, Item{ID: req.ID, Input: req.Input})
		resp := procResponse{
			ID:       req.ID,
			Output:   res.Output,
			Error:    res.Error,
			Duration: res.Duration,
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
}
