package heurist

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/heurist-network/reply-bridge/internal/infra/httpapi"
)

// DefaultSequencerURL is the public job submission endpoint
const DefaultSequencerURL = "http://sequencer.heurist.xyz/submit_job"

// ImageModels are the SD models the sequencer accepts
var ImageModels = []string{
	"AnimagineXL",
	"BrainDance",
	"BluePencilRealistic",
	"ArthemyComics",
	"AAMXLAnimeMix",
}

type sdInput struct {
	Prompt        string `json:"prompt"`
	NegPrompt     string `json:"neg_prompt"`
	NumIterations int    `json:"num_iterations"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	GuidanceScale int    `json:"guidance_scale"`
	Seed          int    `json:"seed"`
}

type submitJobRequest struct {
	JobID      string `json:"job_id"`
	ModelInput struct {
		SD sdInput `json:"SD"`
	} `json:"model_input"`
	ModelID  string `json:"model_id"`
	Deadline int    `json:"deadline"`
	Priority int    `json:"priority"`
}

// ImageClient submits image jobs to the sequencer
type ImageClient struct {
	URL        string
	apiKey     string
	model      string // fixed model, random per job when empty
	httpClient *http.Client
}

// NewImageClient creates a new sequencer client
func NewImageClient(url, apiKey, model string) *ImageClient {
	if url == "" {
		url = DefaultSequencerURL
	}
	return &ImageClient{
		URL:        url,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpapi.NewHTTPClient(),
	}
}

// NewJobID returns a fresh sequencer job id
func NewJobID() string {
	return "sdk_image_" + uuid.NewString()
}

// Generate submits an SD job and returns the resulting image url
func (c *ImageClient) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.model
	if model == "" {
		model = ImageModels[rand.Intn(len(ImageModels))]
	}

	body := submitJobRequest{
		JobID:    NewJobID(),
		ModelID:  model,
		Deadline: 60,
		Priority: 1,
	}
	body.ModelInput.SD = sdInput{
		Prompt:        prompt,
		NumIterations: 30,
		Width:         1024,
		Height:        1024,
		GuidanceScale: 3,
		Seed:          -1,
	}

	req, err := httpapi.NewJSONRequest(ctx, http.MethodPost, c.URL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var raw json.RawMessage
	if err := httpapi.Do(c.httpClient, "sequencer", req, &raw); err != nil {
		return "", err
	}
	return parseImageURL(raw)
}

// parseImageURL accepts either a bare JSON string or an object with a url field
func parseImageURL(raw json.RawMessage) (string, error) {
	var url string
	if err := json.Unmarshal(raw, &url); err == nil && strings.HasPrefix(url, "http") {
		return url, nil
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
		return obj.URL, nil
	}
	return "", fmt.Errorf("sequencer: unexpected response %s", truncate(string(raw), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
