package publish

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	agenterrors "github.com/flowwork/agent/errors"
)

// IPFSPublisher pins content through an IPFS node's HTTP API
// (/api/v0/add). A bearer token is attached when set, for hosted pinning
// endpoints that front the same API.
type IPFSPublisher struct {
	apiURL string
	token  string
	client *http.Client
}

// IPFSConfig holds pinning endpoint settings.
type IPFSConfig struct {
	// APIURL is the node or pinning service base URL,
	// e.g. "http://127.0.0.1:5001". Required.
	APIURL string

	// Token is an optional bearer token for hosted endpoints.
	Token string

	// Timeout bounds each HTTP request. Default 30s.
	Timeout time.Duration
}

// NewIPFSPublisher creates a publisher against an IPFS HTTP API.
func NewIPFSPublisher(cfg IPFSConfig) (*IPFSPublisher, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("ipfs publisher requires an api url")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IPFSPublisher{
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Publish pins the content and returns its CID.
func (p *IPFSPublisher) Publish(ctx context.Context, name string, content []byte) (string, error) {
	cid, err := p.add(ctx, name, bytes.NewReader(content))
	if err != nil {
		return "", agenterrors.WrapWithCode(err, agenterrors.ErrCodePublishFailed, "ipfs add")
	}
	return cid, nil
}

func (p *IPFSPublisher) add(ctx context.Context, name string, reader io.Reader) (string, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, reader); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = writer.Close()
	}()

	reqURL := fmt.Sprintf("%s/api/v0/add?pin=true&cid-version=1", p.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if len(body) == 0 {
			return "", fmt.Errorf("ipfs add failed: %s", resp.Status)
		}
		return "", fmt.Errorf("ipfs add failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	// The add endpoint streams one JSON object per line; the last entry
	// carries the root hash.
	var lastHash string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var entry struct {
			Hash string `json:"Hash"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err == nil && entry.Hash != "" {
			lastHash = entry.Hash
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if lastHash == "" {
		return "", fmt.Errorf("ipfs add returned empty hash")
	}
	return lastHash, nil
}

// Fetch retrieves content by CID via /api/v0/cat.
func (p *IPFSPublisher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("ipfs cat missing cid")
	}
	reqURL := fmt.Sprintf("%s/api/v0/cat?arg=%s", p.apiURL, url.QueryEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if len(body) == 0 {
			return nil, fmt.Errorf("ipfs cat failed: %s", resp.Status)
		}
		return nil, fmt.Errorf("ipfs cat failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}
