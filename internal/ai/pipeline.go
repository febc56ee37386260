// Package ai runs the sequential multi-agent generation pipeline: each
// enabled agent's completion becomes the next agent's prompt, and the
// final agent streams its output chunk-by-chunk to the caller.
package ai

import (
	"context"
	"fmt"
	"time"
)

// MaxAgents caps how many configured slots the pipeline considers.
const MaxAgents = 4

// AgentConfig is one configured step of the pipeline.
type AgentConfig struct {
	Enabled bool   `json:"enabled"`
	Prompt  string `json:"prompt"`
	Model   string `json:"model"`
}

// Backend is a language-model completion backend.
type Backend interface {
	// Complete returns the full completion text for a prompt.
	Complete(ctx context.Context, model, prompt string) (string, error)
	// Stream invokes emit for each text delta in arrival order.
	Stream(ctx context.Context, model, prompt string, emit func(delta string) error) error
}

type Pipeline struct {
	backend     Backend
	stepTimeout time.Duration
}

func NewPipeline(backend Backend, stepTimeout time.Duration) *Pipeline {
	return &Pipeline{backend: backend, stepTimeout: stepTimeout}
}

// Run executes the enabled agents in order, writing output chunks to sink.
// Failures are reported as a final human-readable chunk, never as an
// error return; the sink always sees a terminated sequence. A sink error
// (client gone) aborts silently.
func (p *Pipeline) Run(ctx context.Context, configs []AgentConfig, sink func(chunk string) error) {
	if len(configs) > MaxAgents {
		configs = configs[:MaxAgents]
	}
	var agents []AgentConfig
	for _, c := range configs {
		if c.Enabled {
			agents = append(agents, c)
		}
	}
	if len(agents) == 0 {
		_ = sink("Error: No AI agents enabled.")
		return
	}

	input := agents[0].Prompt
	for i, agent := range agents {
		last := i == len(agents)-1
		if last {
			err := p.step(ctx, func(stepCtx context.Context) error {
				return p.backend.Stream(stepCtx, agent.Model, input, sink)
			})
			if err != nil {
				p.fail(ctx, sink, err)
			}
			return
		}

		var output string
		err := p.step(ctx, func(stepCtx context.Context) error {
			var stepErr error
			output, stepErr = p.backend.Complete(stepCtx, agent.Model, input)
			return stepErr
		})
		if err != nil {
			p.fail(ctx, sink, err)
			return
		}
		input = output
	}
}

func (p *Pipeline) step(ctx context.Context, fn func(context.Context) error) error {
	if p.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stepTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (p *Pipeline) fail(ctx context.Context, sink func(string) error, err error) {
	// Nothing to tell a client that already went away.
	if ctx.Err() != nil {
		return
	}
	_ = sink(fmt.Sprintf("An error occurred during AI generation: %v", err))
}
