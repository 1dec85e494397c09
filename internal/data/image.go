package data

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/biz/repo"
	"github.com/heurist-network/reply-bridge/internal/infra/heurist"
	"github.com/heurist-network/reply-bridge/internal/infra/imgbb"
	"github.com/heurist-network/reply-bridge/internal/middleware"
	"github.com/heurist-network/reply-bridge/internal/retry"
)

// imageRepo generates images on the sequencer and re-hosts them on imgbb
type imageRepo struct {
	generate middleware.Func[string, string]
	host     middleware.Func[string, string]
}

// NewImageRepo creates a new image repository
func NewImageRepo(gen *heurist.ImageClient, host *imgbb.Client, logger zerolog.Logger) repo.ImageRepo {
	cfg := retry.DefaultRetryConfig()
	cfg.BaseDelay = 2 * time.Second

	return &imageRepo{
		generate: middleware.Chain(gen.Generate,
			middleware.Timed[string, string]("image.generate", logger),
			middleware.Retry[string, string](cfg, logger),
		),
		host: middleware.Chain(host.UploadFromURL,
			middleware.Timed[string, string]("image.host", logger),
			middleware.Cached[string, string]("image.host", 100, time.Hour),
			middleware.Retry[string, string](cfg, logger),
		),
	}
}

// Generate returns the url of a generated image
func (r *imageRepo) Generate(ctx context.Context, prompt string) (string, error) {
	return r.generate(ctx, prompt)
}

// Host re-hosts the image at url
func (r *imageRepo) Host(ctx context.Context, url string) (string, error) {
	return r.host(ctx, url)
}
