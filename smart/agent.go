// Package smart implements a question-answering agent that decides when
// to consult web search and can route free-form requests onto plugin
// commands.
package smart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/openplugin/openplugin-go/dispatch"
	"github.com/openplugin/openplugin-go/provider"
	"github.com/openplugin/openplugin-go/registry"
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher provides web search results for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Decider overrides the model-based search classification. Tests use it
// to make the agent deterministic.
type Decider func(ctx context.Context, question string) (bool, error)

const answerSystemPrompt = `You are a helpful AI assistant. Answer questions accurately and helpfully.
If web search results are provided, use them to give current, accurate information.
If no search results are provided, answer based on your training data but mention if information might be outdated.`

const defaultMaxResults = 5

// Agent answers questions, optionally grounding them in web search, and
// routes requests to plugin commands when a registry and dispatcher are
// attached.
type Agent struct {
	provider   provider.Provider
	searcher   Searcher
	decider    Decider
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	maxResults int
}

// Option configures an Agent.
type Option func(*Agent)

// WithSearcher attaches a web search client.
func WithSearcher(s Searcher) Option {
	return func(a *Agent) { a.searcher = s }
}

// WithDecider replaces the model-based search classification.
func WithDecider(d Decider) Option {
	return func(a *Agent) { a.decider = d }
}

// WithRouting attaches the registry and dispatcher used by Route.
func WithRouting(reg *registry.Registry, d *dispatch.Dispatcher) Option {
	return func(a *Agent) {
		a.registry = reg
		a.dispatcher = d
	}
}

// WithLogger sets the agent's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithMaxResults caps how many search results feed the answer.
func WithMaxResults(n int) Option {
	return func(a *Agent) { a.maxResults = n }
}

// New creates an agent on top of a capability provider.
func New(p provider.Provider, opts ...Option) *Agent {
	a := &Agent{
		provider:   p,
		logger:     slog.New(slog.DiscardHandler),
		maxResults: defaultMaxResults,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnswerOptions tune one Answer call.
type AnswerOptions struct {
	// ForceSearch always searches and fails when no searcher is attached;
	// SkipSearch never searches. When neither is set the agent classifies
	// the question itself.
	ForceSearch bool
	SkipSearch  bool
}

// Answer is the outcome of one question.
type Answer struct {
	Text       string
	UsedSearch bool
	Sources    []string
}

// Answer answers a question, deciding on its own whether current web
// information is needed. A failed search degrades to answering without
// context rather than failing the question.
func (a *Agent) Answer(ctx context.Context, question string, opts *AnswerOptions) (*Answer, error) {
	if opts == nil {
		opts = &AnswerOptions{}
	}

	needsSearch := false
	switch {
	case opts.SkipSearch:
	case opts.ForceSearch:
		if a.searcher == nil {
			return nil, errors.New("search forced but no searcher configured")
		}
		needsSearch = true
	case a.searcher != nil:
		needsSearch = a.needsSearch(ctx, question)
	}

	answer := &Answer{}
	var searchContext string
	if needsSearch {
		results, err := a.searcher.Search(ctx, question, a.maxResults)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			a.logger.Warn("web search failed, answering without context", "error", err)
		} else if len(results) > 0 {
			answer.UsedSearch = true
			searchContext = formatResults(results)
			for _, r := range results {
				answer.Sources = append(answer.Sources, r.URL)
			}
		}
	}

	messages := []provider.Message{
		provider.SystemMessage(answerSystemPrompt),
		provider.UserMessage(buildAnswerPrompt(question, searchContext)),
	}
	res, err := a.provider.Chat(ctx, messages, nil, nil)
	if err != nil {
		return nil, err
	}

	answer.Text = res.Text
	return answer, nil
}

// needsSearch classifies whether the question requires current
// information. An inconclusive classification defaults to searching.
func (a *Agent) needsSearch(ctx context.Context, question string) bool {
	if a.decider != nil {
		needs, err := a.decider(ctx, question)
		if err != nil {
			return true
		}
		return needs
	}

	prompt := fmt.Sprintf(`Analyze this question and determine if it needs current/recent information from the web.

Question: %s

Consider:
- Does it ask about recent events, news, or current data?
- Does it ask about specific facts that might change?
- Does it ask "what is the latest..." or "current..."?
- Would the answer benefit from up-to-date information?

Respond with only "YES" or "NO".`, question)

	temp := 0.1
	maxTokens := 10
	res, err := a.provider.Chat(ctx,
		[]provider.Message{provider.UserMessage(prompt)}, nil,
		&provider.CallOptions{Temperature: &temp, MaxTokens: &maxTokens})
	if err != nil {
		return true
	}
	return strings.Contains(strings.ToUpper(res.Text), "YES")
}

func buildAnswerPrompt(question, searchContext string) string {
	if searchContext != "" {
		return fmt.Sprintf(`Question: %s

Web Search Results:
%s

Please answer the question using the search results above. If the search results don't fully answer the question, use your knowledge to provide additional context.`, question, searchContext)
	}
	return fmt.Sprintf(`Question: %s

Please answer this question. Note: You're answering based on your training data, which may not include the most recent information.`, question)
}

func formatResults(results []SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\nSource: %s\n\n", i+1, r.Title, r.Snippet, r.URL)
	}
	return strings.TrimSpace(b.String())
}

// RouteResult is the outcome of one routed request.
type RouteResult struct {
	Text    string
	Routed  bool
	Plugin  string
	Command string
}

// Route asks the model which plugin command fits the request and
// dispatches it. When no plugin is suitable, or routing or execution
// fails, it falls back to answering directly.
func (a *Agent) Route(ctx context.Context, userInput string) (*RouteResult, error) {
	if a.registry == nil || a.dispatcher == nil || a.registry.Len() == 0 {
		return a.answerDirectly(ctx, userInput)
	}

	pluginName, commandName := a.pickCommand(ctx, userInput)
	if pluginName == "" {
		return a.answerDirectly(ctx, userInput)
	}

	res, err := a.dispatcher.Execute(ctx, a.provider, dispatch.Request{
		Plugin: pluginName,
		Kind:   dispatch.KindCommand,
		Name:   commandName,
		Input:  userInput,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		a.logger.Warn("routed execution failed, answering directly",
			"plugin", pluginName, "command", commandName, "error", err)
		return a.answerDirectly(ctx, userInput)
	}

	return &RouteResult{
		Text:    res.Text,
		Routed:  true,
		Plugin:  pluginName,
		Command: commandName,
	}, nil
}

// pickCommand asks the model to select a plugin command. Empty plugin name
// means nothing suitable was picked.
func (a *Agent) pickCommand(ctx context.Context, userInput string) (string, string) {
	var descriptions []string
	for name := range a.registry.List() {
		p, err := a.registry.Get(name)
		if err != nil {
			continue
		}
		commands := slices.Sorted(maps.Keys(p.Commands))
		desc := p.Manifest.Description
		if desc == "" {
			desc = "No description"
		}
		descriptions = append(descriptions,
			fmt.Sprintf("- %s: %s. Commands: %s", name, desc, strings.Join(commands, ", ")))
	}

	prompt := fmt.Sprintf(`User request: %s

Available plugins:
%s

Determine which plugin and command would best handle this request.
Respond in format: PLUGIN_NAME:COMMAND_NAME
If no plugin is suitable, respond: NONE`, userInput, strings.Join(descriptions, "\n"))

	temp := 0.1
	maxTokens := 50
	res, err := a.provider.Chat(ctx,
		[]provider.Message{provider.UserMessage(prompt)}, nil,
		&provider.CallOptions{Temperature: &temp, MaxTokens: &maxTokens})
	if err != nil {
		return "", ""
	}

	choice := strings.TrimSpace(res.Text)
	if choice == "NONE" || !strings.Contains(choice, ":") {
		return "", ""
	}
	pluginName, commandName, _ := strings.Cut(choice, ":")
	return strings.TrimSpace(pluginName), strings.TrimSpace(commandName)
}

func (a *Agent) answerDirectly(ctx context.Context, userInput string) (*RouteResult, error) {
	ans, err := a.Answer(ctx, userInput, nil)
	if err != nil {
		return nil, err
	}
	return &RouteResult{Text: ans.Text}, nil
}
