package cloudinary

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/pkg/storage"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Store keeps submission artifacts in Cloudinary.
type Store struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary content store.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Store{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Put uploads the artifact and returns its public id and secure URL.
func (s *Store) Put(ctx context.Context, object storage.Object) (storage.Stored, error) {
	key := storage.ObjectKey("", object.Name)
	publicID := strings.TrimSuffix(key, path.Ext(key))

	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, object.Body, params)
	if err != nil {
		return storage.Stored{}, fmt.Errorf("failed to upload artifact: %w", err)
	}
	if result.Error.Message != "" {
		return storage.Stored{}, fmt.Errorf("failed to upload artifact: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("artifact uploaded to cloudinary")

	return storage.Stored{Key: result.PublicID, URL: result.SecureURL}, nil
}

// URL returns the permanent delivery URL recorded at upload time.
func (s *Store) URL(_ context.Context, stored storage.Stored) (string, error) {
	if stored.URL == "" {
		return "", fmt.Errorf("cloudinary asset %q has no delivery url", stored.Key)
	}
	return stored.URL, nil
}
