package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"gifpipe/internal/storage"
)

func newGDriveAuthCommand() *cobra.Command {
	var (
		clientID     string
		clientSecret string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "gdrive-auth",
		Short: "Obtain a Google Drive refresh token for GDRIVE_REFRESH_TOKEN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == "" {
				clientID = strings.TrimSpace(os.Getenv("GDRIVE_CLIENT_ID"))
			}
			if clientSecret == "" {
				clientSecret = strings.TrimSpace(os.Getenv("GDRIVE_CLIENT_SECRET"))
			}
			if clientID == "" || clientSecret == "" {
				return errors.New("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required")
			}
			return runGDriveAuth(cmd.Context(), cmd.OutOrStdout(), clientID, clientSecret, timeout)
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id (default $GDRIVE_CLIENT_ID)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (default $GDRIVE_CLIENT_SECRET)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "How long to wait for the browser callback")
	return cmd
}

// runGDriveAuth serves a loopback callback, prints the consent URL and
// exchanges the returned code for tokens.
func runGDriveAuth(ctx context.Context, out io.Writer, clientID, clientSecret string, timeout time.Duration) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
	conf := storage.DriveOAuthConfig(clientID, clientSecret, redirectURL)

	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code, err := callbackCode(r, state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			errCh <- err
			return
		}
		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		codeCh <- code
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	defer srv.Close()

	// Offline access with forced consent so Google returns a refresh token.
	authURL := conf.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	fmt.Fprintln(out, "Open this URL in your browser:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, authURL)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Waiting for authorization on", redirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return errors.New("timed out waiting for authorization")
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		fmt.Fprintln(out, "No refresh_token was returned.")
		fmt.Fprintln(out, "Revoke the app's previous access at https://myaccount.google.com/permissions and run this again.")
		return errors.New("no refresh token")
	}

	fmt.Fprintln(out, "GDRIVE_REFRESH_TOKEN:")
	fmt.Fprintln(out, tok.RefreshToken)
	return nil
}

func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	if q.Get("state") != state {
		return "", errors.New("invalid state")
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("auth error: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("missing code")
	}
	return code, nil
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
