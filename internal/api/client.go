// Package api is the HTTP client for the document-chat backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/iksnae/doc-chat/internal"
)

// maxErrorBody bounds how much of a failed response body is kept in a TransportError
const maxErrorBody = 512

// Client talks to the backend over plain HTTP
type Client struct {
	baseURL string
	http    *http.Client
	// upload has no overall timeout; the stream lives as long as its context
	upload *http.Client
}

// NewClient creates a client for baseURL. timeout bounds every request except
// the upload stream.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	return &Client{
		baseURL: normalized,
		http:    &http.Client{Timeout: timeout},
		upload:  &http.Client{},
	}, nil
}

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// normalizeBaseURL adds a missing scheme and strips the trailing slash. The
// path is kept because the backend mounts its routes under /api.
func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return strings.TrimRight(fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path), "/"), nil
}

// Chat is one entry of GET /chats
type Chat struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DocumentID string `json:"documentId"`
}

// UnmarshalJSON accepts the field names older backends used (_id, doc_id, file_name)
func (c *Chat) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID            string `json:"id"`
		LegacyID      string `json:"_id"`
		Name          string `json:"name"`
		FileName      string `json:"file_name"`
		DocumentID    string `json:"documentId"`
		LegacyDocID   string `json:"doc_id"`
		SnakeDocument string `json:"document_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.ID = firstNonEmpty(raw.ID, raw.LegacyID)
	c.Name = firstNonEmpty(raw.Name, raw.FileName)
	c.DocumentID = firstNonEmpty(raw.DocumentID, raw.LegacyDocID, raw.SnakeDocument)
	return nil
}

// Session converts the chat into an unhydrated session
func (c Chat) Session() internal.Session {
	id := c.ID
	if id == "" {
		id = c.DocumentID
	}
	return internal.Session{ID: id, DocumentID: c.DocumentID, Name: c.Name}
}

type chatsResponse struct {
	Chats []Chat `json:"chats"`
}

type historyResponse struct {
	History []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Text    string `json:"text"`
	} `json:"history"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

// ListChats fetches every conversation the backend knows about
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var resp chatsResponse
	if err := c.getJSON(ctx, "list", c.baseURL+endpointChats, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// History fetches the full transcript of the conversation about documentID
func (c *Client) History(ctx context.Context, documentID string) ([]internal.Message, error) {
	u := c.baseURL + fmt.Sprintf(endpointConversation, url.PathEscape(documentID))

	var resp historyResponse
	if err := c.getJSON(ctx, "history", u, &resp); err != nil {
		return nil, err
	}

	messages := make([]internal.Message, 0, len(resp.History))
	for _, m := range resp.History {
		messages = append(messages, internal.Message{
			Role: internal.ParseRole(m.Role),
			Text: firstNonEmpty(m.Content, m.Text),
		})
	}
	return messages, nil
}

// Query asks question against documentID and returns the answer text
func (c *Client) Query(ctx context.Context, documentID, question string) (string, error) {
	u := c.baseURL + endpointQuery

	form := url.Values{}
	form.Set(fieldDocumentID, documentID)
	form.Set(fieldLegacyDocumentID, documentID)
	form.Set(fieldQuestion, question)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &internal.TransportError{Op: "query", URL: u, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var resp queryResponse
	if err := c.doJSON(req, "query", &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// DeleteChat removes the conversation with the backend id
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	u := c.baseURL + fmt.Sprintf(endpointChatByID, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return &internal.TransportError{Op: "delete", URL: u, Err: err}
	}
	return c.doJSON(req, "delete", nil)
}

// UploadStream posts the document as multipart field "file" and returns the
// progress stream body. The caller must close it.
func (c *Client) UploadStream(ctx context.Context, filename string, r io.Reader) (io.ReadCloser, error) {
	u := c.baseURL + endpointUploadStream

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(fieldFile, filepath.Base(filename))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &internal.TransportError{Op: "upload", URL: u, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "text/event-stream")

	internal.LogDebug("POST %s (%s)", u, filepath.Base(filename))
	resp, err := c.upload.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &internal.TransportError{Op: "upload", URL: u, Err: err}
	}
	if err := checkStatus(resp, "upload", u); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, op, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &internal.TransportError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, op, out)
}

// doJSON sends req and decodes a 2xx body into out. A nil out discards the body.
func (c *Client) doJSON(req *http.Request, op string, out any) error {
	u := req.URL.String()
	internal.LogDebug("%s %s", req.Method, u)

	resp, err := c.http.Do(req)
	if err != nil {
		return &internal.TransportError{Op: op, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, u); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &internal.TransportError{
			Op:         op,
			URL:        u,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// checkStatus turns a non-2xx response into a TransportError and closes its body
func checkStatus(resp *http.Response, op, u string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(strings.ToValidUTF8(string(body), ""))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &internal.TransportError{
		Op:         op,
		URL:        u,
		StatusCode: resp.StatusCode,
		Err:        errors.New(msg),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
