package fragment

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Config holds client configuration
type Config struct {
	// BaseURL is the page origin fragments are fetched from (e.g., "https://tasks.example.com")
	BaseURL string

	// Token is sent as a bearer token when set
	Token string

	// Timeout for HTTP requests
	Timeout time.Duration

	// UserAgent identifies the client
	UserAgent string
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "tasknotify"
	}
}

// Fragment is a fetched page or page partial
type Fragment struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
	Doc         *goquery.Document
}

// Selection returns the root selection of the parsed document
func (f *Fragment) Selection() *goquery.Selection {
	return f.Doc.Selection
}

// ResponseError reports a request that completed with an error status
type ResponseError struct {
	Method     string
	URL        string
	Status     int
	StatusText string
	Body       string
	Err        error
}

func (e *ResponseError) Error() string {
	return e.Message()
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// StatusLine returns "<status> <status text>"
func (e *ResponseError) StatusLine() string {
	return strings.TrimSpace(fmt.Sprintf("%d %s", e.Status, e.StatusText))
}

// Message returns the error message, or an empty string when there is none
func (e *ResponseError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// BodyText returns the response body as plain text. HTML bodies are reduced to
// their text content.
func (e *ResponseError) BodyText() string {
	body := strings.TrimSpace(e.Body)
	if !strings.HasPrefix(body, "<") {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func newResponseError(method, url string, status int, body []byte) *ResponseError {
	return &ResponseError{
		Method:     method,
		URL:        url,
		Status:     status,
		StatusText: http.StatusText(status),
		Body:       string(body),
		Err:        fmt.Errorf("response status error code %d from %s", status, url),
	}
}

// SendError reports a request that never got a response
type SendError struct {
	Method string
	URL    string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Observer is notified of failed requests
type Observer interface {
	OnResponseError(err *ResponseError)
	OnSendError(err *SendError)
}
