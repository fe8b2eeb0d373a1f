package research

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiGrounder answers prompts with Gemini and the Google Search tool.
type geminiGrounder struct {
	client *genai.Client
	model  string
}

func newGeminiGrounder(ctx context.Context, apiKey, model string) (*geminiGrounder, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &geminiGrounder{client: client, model: model}, nil
}

func (g *geminiGrounder) Ground(ctx context.Context, prompt string) (*Result, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI grounded generation failed: %w", err)
	}

	res := &Result{Text: resp.Text()}
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return res, nil
	}
	gm := resp.Candidates[0].GroundingMetadata
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		res.Sources = append(res.Sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	res.Queries = append(res.Queries, gm.WebSearchQueries...)
	return res, nil
}
