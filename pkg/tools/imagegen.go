package tools

import (
	"context"
	"errors"
	"net/http"

	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// ImageOptions configures the image generator. The endpoint is any
// OpenAI-compatible images API; the defaults target Together.
type ImageOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Width   int
	Height  int
	Steps   int
}

// ImageGenerator turns a text prompt into an image URL.
type ImageGenerator struct {
	opts   ImageOptions
	client openai.Client
	logger zerolog.Logger
}

// NewImageGenerator creates the image tool. A missing API key is reported on execute.
func NewImageGenerator(opts ImageOptions, httpClient *http.Client, logger zerolog.Logger) *ImageGenerator {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.together.xyz/v1/"
	}
	if opts.Model == "" {
		opts.Model = "black-forest-labs/FLUX.1-schnell-Free"
	}
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	if opts.Steps <= 0 {
		opts.Steps = 1
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(opts.BaseURL),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(httpClient))
	}

	return &ImageGenerator{
		opts:   opts,
		client: openai.NewClient(clientOpts...),
		logger: logger,
	}
}

func (g *ImageGenerator) Declarations() []toolmanager.Declaration {
	return []toolmanager.Declaration{{
		Name:        "imageGenerator",
		Description: "This tool will generate images based on the prompt",
		Parameters: toolmanager.Object(
			toolmanager.Parameter{Name: "prompt", Type: "string", Description: "the prompt for the image generation", Required: true},
		),
	}}
}

func (g *ImageGenerator) Execute(ctx context.Context, args map[string]any) (any, error) {
	prompt, err := requiredString(args, "prompt")
	if err != nil {
		return nil, err
	}
	if g.opts.APIKey == "" {
		return nil, toolmanager.ExecutionError("image generation is not configured: missing tools.image.api_key")
	}

	g.logger.Info().Int("prompt_len", len(prompt)).Str("model", g.opts.Model).Msg("Generating image")

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.opts.Model),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	},
		option.WithJSONSet("width", g.opts.Width),
		option.WithJSONSet("height", g.opts.Height),
		option.WithJSONSet("steps", g.opts.Steps),
	)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, toolmanager.ExecutionError("Image generation API error: %d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
		}
		return nil, toolmanager.ExecutionError("Image generation failed: %v", err)
	}

	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, toolmanager.ExecutionError("Image generation API returned no image URL")
	}
	return resp.Data[0].URL, nil
}
