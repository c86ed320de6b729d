// Package query turns natural-language requests into validated SQL
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/fallback"
	"github.com/kyleking/sqlpilot/internal/llm"
	"github.com/kyleking/sqlpilot/internal/logging"
	"github.com/kyleking/sqlpilot/internal/sqlguard"
	"github.com/kyleking/sqlpilot/internal/types"
)

const systemPreamble = `You translate requests into SQL for the database described below.
Only use the tables and columns listed. Answer with SQL statements in fenced code blocks.

`

// SchemaSource supplies the schema a request is answered against
type SchemaSource interface {
	Schema(ctx context.Context) (*types.Schema, error)
}

// StaticSchema serves a fixed schema
type StaticSchema struct {
	S *types.Schema
}

// Schema implements SchemaSource
func (s StaticSchema) Schema(context.Context) (*types.Schema, error) {
	return s.S, nil
}

// GenerationResult is the outcome of one Generate call
type GenerationResult struct {
	Success       bool            `json:"success"            yaml:"success"`
	QueryType     types.QueryType `json:"query_type"         yaml:"query_type"`
	Queries       []string        `json:"queries"            yaml:"queries"`
	TablesUsed    []string        `json:"tables_used"        yaml:"tables_used"`
	Warnings      []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	IsAIGenerated bool            `json:"is_ai_generated"    yaml:"is_ai_generated"`
	Timestamp     time.Time       `json:"timestamp"          yaml:"timestamp"`
	Error         string          `json:"error,omitempty"    yaml:"error,omitempty"`
	Provider      string          `json:"provider,omitempty" yaml:"provider,omitempty"`
	RequestID     string          `json:"-"                  yaml:"-"`
}

// Generator runs the prompt to SQL pipeline
type Generator struct {
	source      SchemaSource
	agent       llm.Service
	rules       *sqlguard.Rules
	synthesizer *fallback.Synthesizer
	builder     ContextBuilder
	chatOptions llm.Options
	logger      *logging.Logger
	now         func() time.Time
}

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithRules replaces sqlguard.DefaultRules for extraction
func WithRules(rules *sqlguard.Rules) GeneratorOption {
	return func(g *Generator) { g.rules = rules }
}

// WithSynthesizer replaces the default fallback synthesizer
func WithSynthesizer(s *fallback.Synthesizer) GeneratorOption {
	return func(g *Generator) { g.synthesizer = s }
}

// WithContextBuilder sets the dialect and budget of the schema context
func WithContextBuilder(b ContextBuilder) GeneratorOption {
	return func(g *Generator) { g.builder = b }
}

// WithChatOptions sets sampling options passed to the agent
func WithChatOptions(opts llm.Options) GeneratorOption {
	return func(g *Generator) { g.chatOptions = opts }
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

// WithClock overrides time.Now for result timestamps
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator. A nil agent sends every request to the
// fallback synthesizer.
func NewGenerator(source SchemaSource, agent llm.Service, opts ...GeneratorOption) *Generator {
	g := &Generator{
		source: source,
		agent:  agent,
		rules:  sqlguard.DefaultRules(),
		logger: logging.GetLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.synthesizer == nil {
		g.synthesizer = fallback.New(fallback.WithRules(g.rules))
	}

	return g
}

// Generate converts prompt into validated SQL. Only an empty prompt or an empty
// table selection is returned as an error; every other failure is reported in
// the result with Success false.
func (g *Generator) Generate(ctx context.Context, prompt string, tables []string) (*GenerationResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New(errors.ErrTypeEmptyPrompt, "prompt is empty").
			WithSuggestion("Describe the data you want, for example: show the latest posts")
	}

	result := &GenerationResult{
		QueryType: types.QueryTypeUnknown,
		Queries:   []string{},
		Timestamp: g.now(),
		RequestID: uuid.NewString(),
	}
	logger := g.logger.WithField("request_id", result.RequestID)

	schema, err := g.source.Schema(ctx)
	if err != nil {
		logger.WithError(err).Warn("schema unavailable")
		result.Error = err.Error()

		return result, nil
	}

	selected, tier := SelectWithTier(schema, prompt, tables)
	if len(selected) == 0 {
		if len(tables) > 0 {
			return nil, errors.Newf(errors.ErrTypeNoTables, "none of the requested tables exist: %s", strings.Join(tables, ", ")).
				WithSuggestion("Run 'sqlpilot schema' to list the available tables")
		}

		return nil, errors.New(errors.ErrTypeNoTables, "the schema has no tables")
	}

	logger.WithFields(map[string]any{
		"tier":   tier.String(),
		"tables": len(selected),
	}).Debug("selected tables")

	reply, provider := g.ask(ctx, logger, prompt, selected, result)

	if reply != "" {
		extraction := g.rules.Extract(reply)
		result.Warnings = append(result.Warnings, extraction.Warnings...)

		if len(extraction.Queries) > 0 {
			result.Queries = extraction.Queries
			result.IsAIGenerated = true
			result.Provider = provider
		} else {
			logger.WithError(extraction.Err()).Info("agent output had no usable SQL")
		}
	}

	if !result.IsAIGenerated {
		synthesized := g.synthesizer.Synthesize(prompt, selected)
		result.Warnings = append(result.Warnings, "used keyword-based fallback; review the statement before running it")
		result.Warnings = append(result.Warnings, synthesized.Warnings...)
		result.Queries = append(result.Queries, synthesized.Queries...)
	}

	if len(result.Queries) == 0 {
		result.Error = "no valid SQL statement could be generated"
		return result, nil
	}

	result.Success = true
	result.QueryType = sqlguard.DetectType(result.Queries[0])
	result.TablesUsed = tablesUsed(schema, result.Queries)

	logger.WithFields(map[string]any{
		"queries":     len(result.Queries),
		"ai":          result.IsAIGenerated,
		"query_type":  string(result.QueryType),
		"tables_used": result.TablesUsed,
	}).Info("generated SQL")

	return result, nil
}

// ask sends the rendered context and prompt to the agent. Any failure becomes a
// warning and an empty reply.
func (g *Generator) ask(
	ctx context.Context,
	logger *logging.Logger,
	prompt string,
	tables []*types.TableSchema,
	result *GenerationResult,
) (string, string) {
	if g.agent == nil {
		result.Warnings = append(result.Warnings, "no prompting agent configured")
		return "", ""
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPreamble + g.builder.Render(tables)},
		{Role: llm.RoleUser, Content: prompt},
	}

	var (
		reply, provider string
		err             error
	)

	if attributed, ok := g.agent.(llm.Attributed); ok {
		reply, provider, err = attributed.ChatFrom(ctx, messages, g.chatOptions)
	} else {
		reply, err = g.agent.Chat(ctx, messages, g.chatOptions)
	}

	if err != nil {
		logger.WithError(err).Warn("prompting agent failed")
		result.Warnings = append(result.Warnings, fmt.Sprintf("prompting agent failed: %v", err))

		return "", ""
	}

	if strings.TrimSpace(reply) == "" {
		result.Warnings = append(result.Warnings, "prompting agent returned an empty reply")
		return "", ""
	}

	return reply, provider
}

// tablesUsed returns the schema tables referenced by queries, sorted
func tablesUsed(schema *types.Schema, queries []string) []string {
	seen := make(map[string]bool)
	out := []string{}

	for _, q := range queries {
		for _, name := range sqlguard.ReferencedTables(q) {
			table := schema.Table(name)
			if table == nil || seen[table.Name] {
				continue
			}

			seen[table.Name] = true
			out = append(out, table.Name)
		}
	}

	sort.Strings(out)

	return out
}
