// Package enrich produces AI commentary for stored articles.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrRateLimited   = errors.New("generator rate limited")
	ErrAuthInvalid   = errors.New("generator credentials rejected")
	ErrUpstream      = errors.New("generator upstream error")
	ErrParseDegraded = errors.New("enrichment response was not valid JSON")
)

// DefaultCallTimeout bounds a single generator request.
const DefaultCallTimeout = 30 * time.Second

// Generator turns a prompt into free text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// statusError maps an unsuccessful HTTP answer to one of the sentinel errors.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	detail := strings.TrimSpace(string(body))

	var kind error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		kind = ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrAuthInvalid
	default:
		kind = ErrUpstream
	}

	if detail == "" {
		return fmt.Errorf("%w: %s %s", kind, provider, resp.Status)
	}
	return fmt.Errorf("%w: %s %s: %s", kind, provider, resp.Status, detail)
}
