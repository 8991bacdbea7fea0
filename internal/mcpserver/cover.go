package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/postdesk/internal/apperr"
)

// fetchFunc downloads an image no larger than limit bytes and returns its
// declared MIME type.
type fetchFunc func(ctx context.Context, rawURL string, limit int64) ([]byte, string, error)

var coverTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

func (s *Server) setDraftCover(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	var declared string
	if strings.HasPrefix(rawURL, "data:") {
		data, declared, err = decodeDataURI(rawURL)
	} else {
		data, declared, err = s.fetch(ctx, rawURL, s.maxCover)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	mimeType, err := sniffImage(data, declared)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.svc.SetDraftCover(ctx, mimeType, data, s.maxCover); err != nil {
		if errors.Is(err, apperr.ErrTooLarge) {
			return mcp.NewToolResultError(strings.TrimPrefix(err.Error(), apperr.ErrTooLarge.Error()+": ")), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to save cover: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("cover attached: %s, %d bytes", mimeType, len(data))), nil
}

// sniffImage verifies the content is a supported image and, when a type was
// declared, that the bytes agree with it.
func sniffImage(data []byte, declared string) (string, error) {
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	if !coverTypes[detected] {
		return "", fmt.Errorf("unsupported image type: %s (allowed: png, jpeg, gif, webp)", detected)
	}
	if declared != "" && declared != detected {
		return "", fmt.Errorf("content does not match declared type %s (detected: %s)", declared, detected)
	}
	return detected, nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	if !coverTypes[mime] {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, mime, nil
}

// fetchHTTP downloads an image from an HTTP/HTTPS URL with security checks.
// Bodies over limit are cut at limit+1 bytes so the size check still fails.
func fetchHTTP(ctx context.Context, rawURL string, limit int64) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}

	ct := strings.Split(resp.Header.Get("Content-Type"), ";")[0]
	if !coverTypes[ct] {
		ct = ""
	}
	return data, ct, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}
