// Package cloudinary stores and retrieves the recorded exam media. Each
// session gets its own folder under the configured base folder; the
// transcription stage lists that folder and downloads each recording.
package cloudinary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Asset describes one stored recording.
type Asset struct {
	PublicID  string
	FileName  string
	SecureURL string
	Bytes     int
}

// Store describes the media storage collaborator used by the upload and
// transcription stages.
type Store interface {
	Upload(ctx context.Context, sessionID, fileName string, media io.Reader) (string, error)
	ListBySession(ctx context.Context, sessionID string) ([]Asset, error)
	Download(ctx context.Context, secureURL string) (io.ReadCloser, error)
	FolderLink(sessionID string) string
}

// Service implements Store using Cloudinary.
type Service struct {
	client     *cloudinary.Cloudinary
	httpClient *http.Client
	folder     string
	logger     zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client:     cld,
		httpClient: http.DefaultClient,
		folder:     strings.Trim(cfg.Folder, "/"),
		logger:     logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores one recording under the session's folder and returns its
// secure URL.
func (s *Service) Upload(ctx context.Context, sessionID, fileName string, media io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:       s.sessionFolder(sessionID),
		PublicID:     sanitizePublicID(fileName),
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, media, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload recording: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("session_id", sessionID).Msg("recording uploaded")

	return result.SecureURL, nil
}

// ListBySession returns every recording stored for the session.
func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]Asset, error) {
	result, err := s.client.Admin.Assets(ctx, admin.AssetsParams{
		AssetType:    api.Video,
		DeliveryType: "upload",
		Prefix:       s.sessionFolder(sessionID) + "/",
		MaxResults:   100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list session assets: %w", err)
	}

	assets := make([]Asset, 0, len(result.Assets))
	for _, item := range result.Assets {
		assets = append(assets, Asset{
			PublicID:  item.PublicID,
			FileName:  publicIDBase(item.PublicID),
			SecureURL: item.SecureURL,
			Bytes:     item.Bytes,
		})
	}

	return assets, nil
}

// Download streams one stored recording.
func (s *Service) Download(ctx context.Context, secureURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, secureURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download recording: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download recording: status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// FolderLink returns a browseable link for all of a session's recordings,
// stored on the session as its video link.
func (s *Service) FolderLink(sessionID string) string {
	return fmt.Sprintf("https://console.cloudinary.com/console/media_library/search?q=%s",
		url.QueryEscape("folder="+s.sessionFolder(sessionID)))
}

func (s *Service) sessionFolder(sessionID string) string {
	if s.folder == "" {
		return sessionID
	}
	return s.folder + "/" + sessionID
}

func publicIDBase(publicID string) string {
	if idx := strings.LastIndex(publicID, "/"); idx >= 0 {
		return publicID[idx+1:]
	}
	return publicID
}

func sanitizePublicID(name string) string {
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '-'
	}, name)

	return strings.Trim(mapped, "-")
}
