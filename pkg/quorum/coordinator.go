// Package quorum coordinates identical code running redundantly across the
// custody network's execution nodes: every node runs the submitted action,
// side effects inside it happen exactly once via a run-once election, and a
// single response is released only under threshold agreement.
package quorum

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrQuorumFailure reports sub-quorum participation or output disagreement.
// Transient from the caller's perspective: retryable with backoff upstream.
var ErrQuorumFailure = errors.New("quorum failure")

type NodeID string

// Quorum mirrors BFT sizing: N = 3t+1 tolerates t faulty nodes and releases a
// result once 2t+1 nodes agree on it.
type Quorum struct{ N, T int }

func (q Quorum) Need() int { return 2*q.T + 1 }

// Handler is the per-node body of a submitted action. It must be
// deterministic apart from operations routed through Env.RunOnce.
type Handler func(ctx context.Context, env *Env) ([]byte, error)

// Env is one node's view of an execution.
type Env struct {
	Node NodeID
	exec *execution
}

// RunOnce executes fn exactly once across all redundant nodes. The first
// node to claim the name runs fn; its result (or error) is broadcast, and
// every node, the elector included, continues with that single shared value.
func (e *Env) RunOnce(ctx context.Context, name string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	cell := e.exec.claim(name, e.Node)
	if cell.elector == e.Node {
		cell.val, cell.err = fn(ctx)
		close(cell.done)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-cell.done:
	}
	if cell.err != nil {
		return nil, fmt.Errorf("run-once %q (elected %s): %w", name, cell.elector, cell.err)
	}
	return cell.val, nil
}

// cell holds one run-once election: a single elector, a broadcast channel,
// and the shared result.
type cell struct {
	elector NodeID
	done    chan struct{}
	val     []byte
	err     error
}

// execution is the shared state of one Execute call. Cells are scoped to the
// request, so two submissions never share a side-effect election.
type execution struct {
	mu    sync.Mutex
	cells map[string]*cell
}

// claim returns the cell for name, electing node if it is first to claim.
// The election is decided under a single lock acquisition: exactly one node
// ever sees itself as elector.
func (x *execution) claim(name string, node NodeID) *cell {
	x.mu.Lock()
	defer x.mu.Unlock()
	c, ok := x.cells[name]
	if !ok {
		c = &cell{elector: node, done: make(chan struct{})}
		x.cells[name] = c
	}
	return c
}

// Coordinator drives an in-process node set implementing the network's
// execution contract. Production deployments talk to the remote network; the
// coordinator backs the devnet gateway and the protocol's tests.
type Coordinator struct {
	q       Quorum
	nodes   []NodeID
	signers map[NodeID]*shareSigner
	log     *zap.SugaredLogger
}

// NewCoordinator builds a coordinator with n nodes, t = (n-1)/3.
func NewCoordinator(n int, log *zap.SugaredLogger) *Coordinator {
	c := &Coordinator{
		q:       Quorum{N: n, T: (n - 1) / 3},
		signers: make(map[NodeID]*shareSigner, n),
		log:     log,
	}
	for i := 0; i < n; i++ {
		id := NodeID(fmt.Sprintf("node%d", i+1))
		c.nodes = append(c.nodes, id)
		c.signers[id] = newShareSigner(seedFor(id))
	}
	return c
}

func seedFor(id NodeID) []byte {
	seed := make([]byte, 32)
	copy(seed, id)
	return seed
}

func (c *Coordinator) Size() Quorum    { return c.q }
func (c *Coordinator) Nodes() []NodeID { return c.nodes }

// PubKeys exposes node public keys so callers can verify response certificates.
func (c *Coordinator) PubKeys() map[NodeID]*PubKey {
	out := make(map[NodeID]*PubKey, len(c.signers))
	for id, s := range c.signers {
		out[id] = s.Pubkey()
	}
	return out
}

// Response is the single aggregated result of an execution.
type Response struct {
	Output  []byte
	AggSig  []byte
	Signers []NodeID
}

// ExecError carries per-node failures behind ErrQuorumFailure so callers can
// classify the underlying cause with errors.Is.
type ExecError struct {
	Need     int
	Agreed   int
	NodeErrs []error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("quorum failure: %d/%d nodes agreed, %d errored", e.Agreed, e.Need, len(e.NodeErrs))
}

func (e *ExecError) Unwrap() []error {
	return append([]error{ErrQuorumFailure}, e.NodeErrs...)
}

type nodeResult struct {
	node NodeID
	out  []byte
	err  error
}

// Execute runs h identically and independently on every node, then releases
// one response if at least 2t+1 nodes participated and every participant
// produced the same output. Divergent outputs fail the whole call: a node
// that disagrees with the rest has either diverged from the shared run-once
// results or is faulty, and neither is safe to mask.
func (c *Coordinator) Execute(ctx context.Context, requestID string, h Handler) (*Response, error) {
	exec := &execution{cells: make(map[string]*cell)}

	results := make([]nodeResult, len(c.nodes))
	var wg sync.WaitGroup
	for i, id := range c.nodes {
		wg.Add(1)
		go func(i int, id NodeID) {
			defer wg.Done()
			env := &Env{Node: id, exec: exec}
			out, err := h(ctx, env)
			results[i] = nodeResult{node: id, out: out, err: err}
		}(i, id)
	}
	wg.Wait()

	var (
		agreed   []NodeID
		output   []byte
		haveOut  bool
		nodeErrs []error
		diverged bool
	)
	for _, r := range results {
		if r.err != nil {
			nodeErrs = append(nodeErrs, fmt.Errorf("%s: %w", r.node, r.err))
			continue
		}
		if !haveOut {
			output = r.out
			haveOut = true
		} else if !bytes.Equal(output, r.out) {
			diverged = true
		}
		agreed = append(agreed, r.node)
	}

	need := c.q.Need()
	if diverged || len(agreed) < need {
		if c.log != nil {
			c.log.Warnw("quorum_release_failed",
				"request_id", requestID, "agreed", len(agreed), "need", need,
				"diverged", diverged, "node_errors", len(nodeErrs))
		}
		return nil, &ExecError{Need: need, Agreed: len(agreed), NodeErrs: nodeErrs}
	}

	shares := make([][]byte, 0, len(agreed))
	for _, id := range agreed {
		shares = append(shares, c.signers[id].Sign(output))
	}

	if c.log != nil {
		c.log.Debugw("quorum_released", "request_id", requestID, "signers", len(agreed))
	}
	return &Response{Output: output, AggSig: Aggregate(shares), Signers: agreed}, nil
}
