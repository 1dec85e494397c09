package repo

import "context"

// ImageRepo generates images and re-hosts them at a stable url
type ImageRepo interface {
	// Generate returns the url of an image generated from prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// Host uploads the image at url to the image host and returns the hosted url
	Host(ctx context.Context, url string) (string, error)
}
