package resilient

import (
	"context"
	"errors"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
)

// Provider decorates an ai.AIProvider so every call goes through an Executor.
type Provider struct {
	inner     ai.AIProvider
	exec      *Executor
	embedder  *embedder
	generator *generator
	extractor *extractor
}

var _ ai.AIProvider = (*Provider)(nil)

// Wrap decorates provider with the call discipline described by cfg.
// Closing the returned provider closes provider as well.
func Wrap(provider ai.AIProvider, cfg Config, opts ...Option) (*Provider, error) {
	if provider == nil {
		return nil, errors.New("resilient: provider is nil")
	}
	exec, err := NewExecutor(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{
		inner:     provider,
		exec:      exec,
		embedder:  &embedder{inner: provider.Embedder(), exec: exec},
		generator: &generator{inner: provider.Generator(), exec: exec},
		extractor: &extractor{inner: provider.RelationExtractor(), exec: exec},
	}, nil
}

// Embedder returns the wrapped embedder.
func (p *Provider) Embedder() ai.Embedder { return p.embedder }

// Generator returns the wrapped generator.
func (p *Provider) Generator() ai.Generator { return p.generator }

// RelationExtractor returns the wrapped relation extractor.
func (p *Provider) RelationExtractor() ai.RelationExtractor { return p.extractor }

// Close releases the executor and the inner provider.
func (p *Provider) Close() error {
	p.exec.Close()
	return p.inner.Close()
}

func run(ctx context.Context, exec *Executor, collaborator, op string, fn func(context.Context) error) error {
	attempts, err := exec.Execute(ctx, collaborator+"."+op, fn)
	if err == nil {
		return nil
	}
	return &core.CollaboratorError{Collaborator: collaborator, Op: op, Attempts: attempts, Err: err}
}

type embedder struct {
	inner ai.Embedder
	exec  *Executor
}

func (e *embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := run(ctx, e.exec, "embedder", "embed_text", func(ctx context.Context) error {
		var err error
		out, err = e.inner.EmbedText(ctx, text)
		return err
	})
	return out, err
}

func (e *embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := run(ctx, e.exec, "embedder", "embed_texts", func(ctx context.Context) error {
		var err error
		out, err = e.inner.EmbedTexts(ctx, texts)
		return err
	})
	return out, err
}

type generator struct {
	inner ai.Generator
	exec  *Executor
}

func (g *generator) Generate(ctx context.Context, prompt string, spans []ai.GroundingSpan) ([]ai.Segment, error) {
	var out []ai.Segment
	err := run(ctx, g.exec, "generator", "generate", func(ctx context.Context) error {
		var err error
		out, err = g.inner.Generate(ctx, prompt, spans)
		return err
	})
	return out, err
}

type extractor struct {
	inner ai.RelationExtractor
	exec  *Executor
}

func (x *extractor) ExtractRelations(ctx context.Context, text string) ([]core.Relation, error) {
	var out []core.Relation
	err := run(ctx, x.exec, "relation_extractor", "extract_relations", func(ctx context.Context) error {
		var err error
		out, err = x.inner.ExtractRelations(ctx, text)
		return err
	})
	return out, err
}
