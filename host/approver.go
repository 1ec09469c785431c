package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/user/aurapair/protocol"
)

// Approver decides whether a pairing request gets the network details.
type Approver interface {
	Approve(ctx context.Context, req protocol.HandshakeRequest) bool
}

// AutoApprove approves every request.
type AutoApprove struct{}

func (AutoApprove) Approve(context.Context, protocol.HandshakeRequest) bool { return true }

// DenyAll approves nothing.
type DenyAll struct{}

func (DenyAll) Approve(context.Context, protocol.HandshakeRequest) bool { return false }

// AllowList approves requesters whose id is in the list.
type AllowList map[string]bool

func (a AllowList) Approve(_ context.Context, req protocol.HandshakeRequest) bool {
	return a[req.RequesterID]
}

// PromptApprover asks an operator on out and reads y/n answers from in.
// Prompts are serialized.
type PromptApprover struct {
	out io.Writer

	mu    sync.Mutex
	lines chan string
}

func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	p := &PromptApprover{out: out, lines: make(chan string)}
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
		close(p.lines)
	}()
	return p
}

func (p *PromptApprover) Approve(ctx context.Context, req protocol.HandshakeRequest) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "Pairing request from %q (%s). Approve? [y/N] ", req.RequesterName, req.RequesterID)
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false
	case line, ok := <-p.lines:
		if !ok {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}
