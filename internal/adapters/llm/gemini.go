package llm

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/observability"
)

const DefaultModel = "gemini-2.5-flash"

// GeminiConfig selects the backend: an API key uses the Gemini API, a
// project and location use Vertex AI.
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// GeminiClient implements the text-model ports on top of Gemini. The
// underlying client is created on first use, so a missing credential fails
// the attempted turn instead of the process.
type GeminiClient struct {
	cfg GeminiConfig

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &GeminiClient{cfg: cfg}
}

func (g *GeminiClient) conn(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	var cc *genai.ClientConfig
	switch {
	case g.cfg.APIKey != "":
		cc = &genai.ClientConfig{APIKey: g.cfg.APIKey, Backend: genai.BackendGeminiAPI}
	case g.cfg.Project != "" && g.cfg.Location != "":
		cc = &genai.ClientConfig{Project: g.cfg.Project, Location: g.cfg.Location, Backend: genai.BackendVertexAI}
	default:
		return nil, fmt.Errorf("%w: set an API key or a GCP project and location", domain.ErrConfiguration)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: creating genai client: %v", domain.ErrConfiguration, err)
	}
	g.client = client
	return client, nil
}

// StreamReply implements domain.LLMClient. Each streamed chunk becomes one
// fragment; the stream is not opened until the sequence is ranged over.
func (g *GeminiClient) StreamReply(ctx context.Context, req domain.GenerationRequest) (domain.Fragments, error) {
	client, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}
	contents := BuildContents(req)
	cfg := BuildConfig(req.SystemInstruction, req.Settings)

	observability.LoggerFromContext(ctx).Debug("gemini stream",
		"persona", req.PersonaID, "model", g.cfg.Model, "history", len(req.History))

	return func(yield func(string, error) bool) {
		for resp, err := range client.Models.GenerateContentStream(ctx, g.cfg.Model, contents, cfg) {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}, nil
}

func (g *GeminiClient) Summarize(ctx context.Context, history []*domain.Message, personas []*domain.Persona) (domain.ChatContext, error) {
	if len(history) == 0 {
		return domain.ChatContext{}, nil
	}
	text, err := g.generateJSON(ctx, summaryPrompt(history, personas), contextSchema)
	if err != nil {
		return domain.ChatContext{}, err
	}
	return ParseContext(text)
}

func (g *GeminiClient) InferTitle(ctx context.Context, history []*domain.Message) (string, error) {
	text, err := g.generateJSON(ctx, titlePrompt(history), titleSchema)
	if err != nil {
		return "", err
	}
	return ParseTitle(text)
}

func (g *GeminiClient) SuggestUserPersona(ctx context.Context) (domain.UserPersona, error) {
	text, err := g.generateJSON(ctx, personaPrompt, personaSchema)
	if err != nil {
		return domain.UserPersona{}, err
	}
	return ParseUserPersona(text)
}

func (g *GeminiClient) generateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	client, err := g.conn(ctx)
	if err != nil {
		return "", err
	}
	res, err := client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrMalformedResponse)
	}
	return text, nil
}
