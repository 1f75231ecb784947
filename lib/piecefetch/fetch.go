package piecefetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("piecefetch")

// EnvPieceToken supplies the market auth token when the fetcher is built
// from the environment.
const EnvPieceToken = "VENUS_WORKER_PIECE_TOKEN"

const bearerPrefix = "Bearer "

// Fetcher opens deal piece payloads over HTTP. The first request is made
// without following redirects; when the market endpoint answers with a
// redirect, the Location is requested again with the auth token attached,
// since proxies strip the Authorization header across hosts.
type Fetcher struct {
	client         *http.Client
	redirectClient *http.Client
	token          string
}

func New(token string) *Fetcher {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   5 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		redirectClient: &http.Client{
			Transport: transport,
			Timeout:   5 * time.Minute,
		},
		token: token,
	}
}

func FromEnv() *Fetcher {
	return New(os.Getenv(EnvPieceToken))
}

// Open requests the piece payload and returns its byte stream. The caller
// owns the returned ReadCloser.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, xerrors.Errorf("parse piece url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, xerrors.Errorf("build piece request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("request piece url: %w", err)
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		resp.Body.Close()
		if loc == "" {
			return nil, xerrors.New("redirect location not found")
		}

		redirected, err := u.Parse(loc)
		if err != nil {
			return nil, xerrors.Errorf("join redirect url: %w", err)
		}

		rreq, err := http.NewRequestWithContext(ctx, http.MethodGet, redirected.String(), nil)
		if err != nil {
			return nil, xerrors.Errorf("build redirected request: %w", err)
		}
		if f.token != "" {
			rreq.Header.Set("Authorization", bearerPrefix+f.token)
		}

		log.Debugw("following piece redirect", "from", u.String(), "to", redirected.String())

		resp, err = f.redirectClient.Do(rreq)
		if err != nil {
			return nil, xerrors.Errorf("request redirected location: %w", err)
		}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, xerrors.Errorf("get resource %s failed invalid status code %d", rawURL, resp.StatusCode)
	}

	return resp.Body, nil
}
