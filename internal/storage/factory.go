package storage

import (
	"context"
	"fmt"

	"gifpipe/internal/adapters/storage/gcs"
	"gifpipe/internal/adapters/storage/gdrive"
	"gifpipe/internal/adapters/storage/localfs"
	"gifpipe/internal/adapters/storage/s3"
	"gifpipe/internal/config"
	"gifpipe/internal/signedurl"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewProvider builds the provider selected by cfg.Provider. signer is only used by
// localfs and may be nil.
func NewProvider(ctx context.Context, cfg config.Storage, publicBaseURL string, signer *signedurl.Signer) (Provider, error) {
	switch cfg.Provider {
	case "", "localfs":
		var ts localfs.TokenSigner
		if signer != nil {
			ts = signer
		}
		return localfs.New(cfg.LocalRoot, publicBaseURL, ts), nil

	case "gcs":
		return gcs.New(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)

	case "s3":
		return s3.New(s3.Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		}), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// DriveOAuthConfig returns the OAuth client used both by the provider and by the
// refresh-token bootstrap command.
func DriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
}

func newGDriveProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	conf := DriveOAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")

	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(context.Background(), tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
