// Package tools exposes recall to tool-calling agents over UTCP.
package tools

import (
	"context"
	"fmt"
	"strings"

	utcp "github.com/universal-tool-calling-protocol/go-utcp"
	"github.com/universal-tool-calling-protocol/go-utcp/src/providers/base"
	"github.com/universal-tool-calling-protocol/go-utcp/src/providers/cli"
	"github.com/universal-tool-calling-protocol/go-utcp/src/repository"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"
	"github.com/universal-tool-calling-protocol/go-utcp/src/transports"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// Retriever is the part of recall.Recall the tool needs.
type Retriever interface {
	Retrieve(ctx context.Context, chatID string, rctx model.RetrievalContext) (RetrieveResult, error)
}

// RetrieveResult is what a retrieval tool call returns.
type RetrieveResult struct {
	Text     string
	Mode     string
	Selected []string
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, chatID string, rctx model.RetrievalContext) (RetrieveResult, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, chatID string, rctx model.RetrievalContext) (RetrieveResult, error) {
	return f(ctx, chatID, rctx)
}

// Defaults fills budgets a caller leaves out.
type Defaults struct {
	PreFilterTokens int
	FinalTokens     int
}

// RetrieveTool describes the memory retrieval tool. Inputs:
// - chat_id (required)
// - messages: recent user messages, newest last
// - recent_context, chat_length, pov, active
// - pre_filter_tokens, final_tokens: override the defaults
func RetrieveTool(name, description string, r Retriever, d Defaults) utcptools.Tool {
	return utcptools.Tool{
		Name:        name,
		Description: description,
		Provider: &base.BaseProvider{
			Name:         providerName(name),
			ProviderType: base.ProviderCLI,
		},
		Inputs: utcptools.ToolInputOutputSchema{
			Type: "object",
			Properties: map[string]any{
				"chat_id":           map[string]any{"type": "string", "description": "Conversation id."},
				"messages":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"recent_context":    map[string]any{"type": "string"},
				"chat_length":       map[string]any{"type": "integer"},
				"pov":               map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"active":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"pre_filter_tokens": map[string]any{"type": "integer"},
				"final_tokens":      map[string]any{"type": "integer"},
			},
			Required: []string{"chat_id"},
		},
		Outputs: utcptools.ToolInputOutputSchema{
			Type: "object",
			Properties: map[string]any{
				"context":  map[string]any{"type": "string"},
				"mode":     map[string]any{"type": "string"},
				"selected": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		Handler: utcptools.ToolHandler(func(ctx context.Context, inputs map[string]interface{}) (any, error) {
			chatID := strings.TrimSpace(model.StringFromAny(inputs["chat_id"]))
			if chatID == "" {
				return nil, fmt.Errorf("missing or invalid 'chat_id'")
			}
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := r.Retrieve(ctx, chatID, contextFromInputs(inputs, d))
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"context":  res.Text,
				"mode":     res.Mode,
				"selected": res.Selected,
			}, nil
		}),
	}
}

func contextFromInputs(inputs map[string]any, d Defaults) model.RetrievalContext {
	rctx := model.RetrievalContext{
		RecentContext:    model.StringFromAny(inputs["recent_context"]),
		UserMessages:     model.StringSliceFromAny(inputs["messages"]),
		ChatLength:       model.IntFromAny(inputs["chat_length"]),
		POVCharacters:    model.StringSliceFromAny(inputs["pov"]),
		ActiveCharacters: model.StringSliceFromAny(inputs["active"]),
		PreFilterTokens:  d.PreFilterTokens,
		FinalTokens:      d.FinalTokens,
	}
	if v := model.IntFromAny(inputs["pre_filter_tokens"]); v > 0 {
		rctx.PreFilterTokens = v
	}
	if v := model.IntFromAny(inputs["final_tokens"]); v > 0 {
		rctx.FinalTokens = v
	}
	return rctx
}

func providerName(name string) string {
	name = strings.TrimSpace(name)
	if parts := strings.Split(name, "."); len(parts) > 1 {
		return parts[0]
	}
	return name
}

// RegisterUTCPProvider registers tool on client. An in-process transport
// is installed under the CLI provider type so CallTool reaches the handler
// directly.
func RegisterUTCPProvider(ctx context.Context, client utcp.UtcpClientInterface, tool utcptools.Tool) error {
	if client == nil {
		return fmt.Errorf("utcp client is nil")
	}
	tp := &cli.CliProvider{
		BaseProvider: base.BaseProvider{
			Name:         providerName(tool.Name),
			ProviderType: base.ProviderCLI,
		},
	}

	transportsMap := client.GetTransports()
	if transportsMap == nil {
		return fmt.Errorf("utcp client transports map is nil")
	}
	existing := transportsMap[string(base.ProviderCLI)]
	shim, ok := existing.(*inProcessTransport)
	if !ok {
		shim = &inProcessTransport{inner: existing}
		transportsMap[string(base.ProviderCLI)] = shim
	}
	if shim.tools == nil {
		shim.tools = make(map[string][]utcptools.Tool)
	}
	shim.tools[tp.Name] = append(shim.tools[tp.Name], tool)

	_, err := client.RegisterToolProvider(ctx, tp)
	return err
}

// inProcessTransport serves registered tools from memory and defers
// everything else to the transport it replaced.
type inProcessTransport struct {
	inner repository.ClientTransport
	tools map[string][]utcptools.Tool
}

func (t *inProcessTransport) RegisterToolProvider(ctx context.Context, prov base.Provider) ([]utcptools.Tool, error) {
	if p, ok := prov.(*cli.CliProvider); ok {
		if list, ok := t.tools[p.Name]; ok {
			return list, nil
		}
	}
	if t.inner != nil {
		return t.inner.RegisterToolProvider(ctx, prov)
	}
	return nil, fmt.Errorf("no tools registered for provider %T", prov)
}

func (t *inProcessTransport) DeregisterToolProvider(ctx context.Context, prov base.Provider) error {
	if p, ok := prov.(*cli.CliProvider); ok {
		if _, ok := t.tools[p.Name]; ok {
			delete(t.tools, p.Name)
			return nil
		}
	}
	if t.inner != nil {
		return t.inner.DeregisterToolProvider(ctx, prov)
	}
	return nil
}

func (t *inProcessTransport) CallTool(ctx context.Context, toolName string, args map[string]any, prov base.Provider, _ *string) (any, error) {
	if p, ok := prov.(*cli.CliProvider); ok {
		for _, tool := range t.tools[p.Name] {
			if tool.Name == toolName || strings.HasSuffix(tool.Name, "."+toolName) {
				if tool.Handler == nil {
					return nil, fmt.Errorf("tool %s has no handler", toolName)
				}
				return tool.Handler(ctx, args)
			}
		}
	}
	if t.inner != nil {
		return t.inner.CallTool(ctx, toolName, args, prov, nil)
	}
	return nil, fmt.Errorf("tool %s not found", toolName)
}

func (t *inProcessTransport) CallToolStream(ctx context.Context, toolName string, args map[string]any, prov base.Provider) (transports.StreamResult, error) {
	if p, ok := prov.(*cli.CliProvider); ok {
		if _, ok := t.tools[p.Name]; ok {
			return nil, fmt.Errorf("streaming not supported for tool %s", toolName)
		}
	}
	if t.inner != nil {
		return t.inner.CallToolStream(ctx, toolName, args, prov)
	}
	return nil, fmt.Errorf("unsupported provider type %T", prov)
}
