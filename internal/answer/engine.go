// Package answer retrieves relevant chunks and composes grounded responses.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/ai"
	"github.com/schoolchat/knowledge-engine/internal/knowledge"
	"github.com/schoolchat/knowledge-engine/internal/metrics"
	"github.com/schoolchat/knowledge-engine/internal/vectorstore"
)

// NoInformationAnswer is returned verbatim when no chunk clears the
// similarity floor. The generator is never consulted in that case, so the
// engine cannot hallucinate an answer it has no grounding for.
const NoInformationAnswer = "I don't have specific information about that in my knowledge base. " +
	"Please contact the school office directly and they will be happy to help."

const systemPrompt = "You are a helpful assistant for a school. Answer questions using only the " +
	"provided context. Be concise and friendly. If the context does not contain " +
	"the answer, say you do not have that information rather than guessing."

const promptTemplate = `Context information about the school:

%s

Question: %s

Answer the question using only the context above.`

// Options tunes one retrieval-and-answer pass. Zero values fall back to the
// engine defaults.
type Options struct {
	Namespace       string
	TopK            int
	SimilarityFloor float64
	MaxContextChars int
	MaxSources      int
}

// Result is one answered question.
type Result struct {
	Answer string `json:"answer"`
	// Generated is false when the answer came from the no-information path
	// or the raw-excerpt fallback.
	Generated bool     `json:"generated"`
	Sources   []Source `json:"sources,omitempty"`
}

// Source identifies a chunk that grounded the answer.
type Source struct {
	URL   string  `json:"url"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"score"`
}

// Engine answers questions from the vector store, generating prose with the
// AI provider when it is reachable and degrading to raw excerpts when not.
type Engine struct {
	embedder  ai.Embedder
	generator ai.Generator
	store     *vectorstore.Router
	defaults  Options
	logger    *zap.Logger
}

// New wires an answer engine. defaults apply wherever per-call Options leave
// a field zero.
func New(embedder ai.Embedder, generator ai.Generator, store *vectorstore.Router, defaults Options, logger *zap.Logger) *Engine {
	if defaults.TopK <= 0 {
		defaults.TopK = 5
	}
	if defaults.SimilarityFloor <= 0 {
		defaults.SimilarityFloor = 0.3
	}
	if defaults.MaxContextChars <= 0 {
		defaults.MaxContextChars = 4000
	}
	if defaults.MaxSources <= 0 {
		defaults.MaxSources = 3
	}
	return &Engine{
		embedder:  embedder,
		generator: generator,
		store:     store,
		defaults:  defaults,
		logger:    logger.Named("answer"),
	}
}

// Answer embeds the question, retrieves and filters chunks, and produces a
// grounded response.
func (e *Engine) Answer(ctx context.Context, question string, opts Options) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, errors.New("question is empty")
	}
	opts = e.merge(opts)
	if opts.Namespace == "" {
		return Result{}, errors.New("namespace is required")
	}

	vector, err := e.embedder.EmbedText(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("embed question: %w", err)
	}
	scored, err := e.store.Query(ctx, opts.Namespace, vector, opts.TopK)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve context: %w", err)
	}

	relevant := scored[:0:0]
	for _, sc := range scored {
		if sc.Score >= opts.SimilarityFloor {
			relevant = append(relevant, sc)
		}
	}
	if len(relevant) == 0 {
		e.logger.Debug("no chunk cleared the similarity floor",
			zap.String("namespace", opts.Namespace),
			zap.Int("retrieved", len(scored)),
		)
		return Result{Answer: NoInformationAnswer}, nil
	}

	contextText := buildContext(relevant, opts.MaxContextChars)
	sources := collectSources(relevant, opts.MaxSources)

	generated, err := e.generator.Generate(ctx, systemPrompt, fmt.Sprintf(promptTemplate, contextText, question))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, err
		}
		// Provider outage. The excerpt is worse prose but still grounded.
		e.logger.Warn("generation failed, serving excerpt", zap.Error(err))
		metrics.ObserveAnswerFallback()
		return Result{
			Answer:  excerptAnswer(relevant[0].Chunk),
			Sources: sources,
		}, nil
	}
	return Result{Answer: strings.TrimSpace(generated), Generated: true, Sources: sources}, nil
}

func (e *Engine) merge(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = e.defaults.TopK
	}
	if opts.SimilarityFloor <= 0 {
		opts.SimilarityFloor = e.defaults.SimilarityFloor
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = e.defaults.MaxContextChars
	}
	if opts.MaxSources <= 0 {
		opts.MaxSources = e.defaults.MaxSources
	}
	if opts.Namespace == "" {
		opts.Namespace = e.defaults.Namespace
	}
	return opts
}

// buildContext concatenates chunk texts in similarity order under a character
// budget. A chunk that would overflow is truncated at a sentence boundary,
// falling back to a word boundary; later chunks are dropped.
func buildContext(chunks []knowledge.ScoredChunk, budget int) string {
	var b strings.Builder
	for _, sc := range chunks {
		text := strings.TrimSpace(sc.Text)
		if text == "" {
			continue
		}
		remaining := budget - b.Len()
		if remaining <= 0 {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
			remaining -= 2
		}
		if len(text) > remaining {
			text = truncate(text, remaining)
			if text == "" {
				break
			}
		}
		b.WriteString(text)
	}
	return b.String()
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > limit/2 {
		return strings.TrimSpace(cut[:idx+1])
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		return strings.TrimSpace(cut[:idx])
	}
	return strings.TrimSpace(cut)
}

func collectSources(chunks []knowledge.ScoredChunk, max int) []Source {
	seen := make(map[string]struct{}, max)
	sources := make([]Source, 0, max)
	for _, sc := range chunks {
		if _, dup := seen[sc.SourceURL]; dup {
			continue
		}
		seen[sc.SourceURL] = struct{}{}
		sources = append(sources, Source{URL: sc.SourceURL, Title: sc.Title, Score: sc.Score})
		if len(sources) == max {
			break
		}
	}
	return sources
}

func excerptAnswer(c knowledge.Chunk) string {
	excerpt := truncate(strings.TrimSpace(c.Text), 500)
	return "Here is what I found on the school website:\n\n" + excerpt
}
