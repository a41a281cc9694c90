// Package docs calls the external contract rendering service. Rendering is
// best-effort for the onboarding saga: a failure here is logged by the caller
// and never affects the saga result.
package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"talentcore/pkg/domain"
)

// DefaultTimeout bounds one render call; the transport default would be none.
const DefaultTimeout = 30 * time.Second

// Renderer produces the signed contract document for a contract.
type Renderer interface {
	RenderContractDocument(ctx context.Context, contract domain.Contract) ([]byte, error)
}

// HTTPRenderer calls the rendering service over HTTP and expects a PDF back.
type HTTPRenderer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRenderer constructs a renderer client.
func NewHTTPRenderer(baseURL string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPRenderer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RenderContractDocument posts the contract fields and returns the rendered
// PDF bytes. Responses that are not a well-formed PDF are rejected; HTML
// error pages are unwrapped into the returned error.
func (r *HTTPRenderer) RenderContractDocument(ctx context.Context, contract domain.Contract) ([]byte, error) {
	payload, err := json.Marshal(struct {
		ContractID     string `json:"contractId"`
		ContractNumber string `json:"contractNumber"`
		IdentityID     string `json:"identityId"`
		PositionID     string `json:"positionId"`
		Salary         int64  `json:"salary"`
		StartDate      string `json:"startDate"`
	}{
		ContractID:     contract.ID,
		ContractNumber: contract.ContractNumber,
		IdentityID:     contract.IdentityID,
		PositionID:     contract.PositionID,
		Salary:         contract.Salary,
		StartDate:      contract.StartDate.Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render/contract", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render contract %s: %w", contract.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read render response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("render contract %s: status %d: %s", contract.ID, resp.StatusCode, responseDetail(resp.Header.Get("Content-Type"), data))
	}
	if err := CheckPDF(data); err != nil {
		// Some render gateways report errors as 200 HTML pages.
		return nil, fmt.Errorf("render contract %s: %s", contract.ID, responseDetail(resp.Header.Get("Content-Type"), data))
	}
	return data, nil
}

// responseDetail extracts a readable message from a service response body.
func responseDetail(contentType string, data []byte) string {
	if strings.Contains(contentType, "html") || bytes.Contains(data[:min(len(data), 256)], []byte("<html")) {
		if text := extractHTMLText(data); text != "" {
			return text
		}
	}
	const maxDetail = 200
	s := strings.TrimSpace(string(data))
	if len(s) > maxDetail {
		s = s[:maxDetail]
	}
	if s == "" {
		s = "unexpected response body"
	}
	return s
}

func extractHTMLText(data []byte) string {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" || node.Data == "head" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	text := strings.Join(strings.Fields(buf.String()), " ")
	const maxDetail = 200
	if len(text) > maxDetail {
		text = text[:maxDetail]
	}
	return text
}
