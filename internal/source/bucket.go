package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/dagaz/internal/apperr"
)

// Bucket implements Source against an HTTP object-listing API: the kind
// of flat bucket index design tools publish their preset exports to.
//
//	GET {base}/objects?prefix=P&token=T  → {"objects":[{"key":..,"lastModified":..,"size":..}],"nextToken":..}
//	GET {base}/objects/{key}            → raw file bytes
type Bucket struct {
	baseURL string
	token   string
	filter  ListFilter
	client  *http.Client
}

var _ Source = (*Bucket)(nil)

// NewBucket creates a bucket source. token may be empty for
// unauthenticated endpoints.
func NewBucket(baseURL, token string, filter ListFilter) *Bucket {
	return &Bucket{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		filter:  filter,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type bucketObject struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"lastModified"`
	Size         int64     `json:"size"`
}

type bucketPage struct {
	Objects   []bucketObject `json:"objects"`
	NextToken string         `json:"nextToken"`
}

// List pages through the bucket index until the next-token runs out and
// returns every object passing the filter.
func (b *Bucket) List(ctx context.Context) ([]FileInfo, error) {
	var out []FileInfo
	token := ""
	for {
		path := "/objects"
		params := url.Values{}
		if b.filter.Prefix != "" {
			params.Set("prefix", b.filter.Prefix)
		}
		if token != "" {
			params.Set("token", token)
		}
		if len(params) > 0 {
			path += "?" + params.Encode()
		}

		resp, err := b.do(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("source: list bucket: %w", err)
		}
		page, err := decodeJSON[bucketPage](resp)
		if err != nil {
			return nil, fmt.Errorf("source: list bucket: %w", err)
		}
		for _, obj := range page.Objects {
			if !b.filter.Match(obj.Key) {
				continue
			}
			out = append(out, FileInfo{
				Name:   obj.Key,
				Marker: fmt.Sprintf("%d-%d", obj.LastModified.UnixNano(), obj.Size),
			})
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	return out, nil
}

// Fetch downloads the raw bytes of one object.
func (b *Bucket) Fetch(ctx context.Context, name string) ([]byte, error) {
	resp, err := b.do(ctx, "/objects/"+url.PathEscape(name))
	if err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("source: fetch %s: %w", name, apperr.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: fetch %s: status %d", name, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", name, err)
	}
	return data, nil
}

func (b *Bucket) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.client.Do(req)
}

func decodeJSON[T any](resp *http.Response) (T, error) {
	defer resp.Body.Close()
	var zero T
	if resp.StatusCode >= 400 {
		return zero, fmt.Errorf("status %d", resp.StatusCode)
	}
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}
