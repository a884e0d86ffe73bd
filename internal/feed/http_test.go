package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type MockRoundTripper struct {
	RoundTripFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestNewHTTPSource(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"Default", "", false},
		{"HTTPS", "https://example.com/search.json?q=polar", false},
		{"BadScheme", "ftp://example.com/search", true},
		{"Unparseable", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPSource(HTTPConfig{URL: tt.url})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewHTTPSource() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPSource_PageURL(t *testing.T) {
	src, err := NewHTTPSource(HTTPConfig{URL: "http://example.com/search.json?q=%22polar%20bear%22&page=9"})
	if err != nil {
		t.Fatalf("NewHTTPSource() failed: %v", err)
	}

	got := src.PageURL(3)
	if !strings.Contains(got, "page=3") {
		t.Errorf("PageURL(3) = %q, missing page=3", got)
	}
	if strings.Contains(got, "page=9") {
		t.Errorf("PageURL(3) = %q, kept configured page", got)
	}
	if !strings.Contains(got, "q=%22polar+bear%22") {
		t.Errorf("PageURL(3) = %q, lost query", got)
	}
}

func TestHTTPSource_FetchPage(t *testing.T) {
	tests := []struct {
		name        string
		transport   http.RoundTripper
		wantErr     bool
		wantItems   int
		wantHasMore bool
	}{
		{
			name: "Success",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(200, `{"results":[{"created_at":"Mon, 02 Jan 2023 15:04:05 +0000","text":"a"},{"created_at":"Mon, 02 Jan 2023 15:05:05 +0000"}]}`), nil
				},
			},
			wantItems:   2,
			wantHasMore: true,
		},
		{
			name: "EmptyResults",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(200, `{"results":[]}`), nil
				},
			},
			wantItems:   0,
			wantHasMore: false,
		},
		{
			name: "ProviderAdvertisesEnd",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(200, `{"results":[{"created_at":"Mon, 02 Jan 2023 15:04:05 +0000"}],"next_page":""}`), nil
				},
			},
			wantItems:   1,
			wantHasMore: false,
		},
		{
			name: "ProviderAdvertisesMore",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(200, `{"results":[{"created_at":"Mon, 02 Jan 2023 15:04:05 +0000"}],"next_page":"?page=2"}`), nil
				},
			},
			wantItems:   1,
			wantHasMore: true,
		},
		{
			name: "TransportError",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return nil, errors.New("net error")
				},
			},
			wantErr: true,
		},
		{
			name: "StatusError",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(503, "unavailable"), nil
				},
			},
			wantErr: true,
		},
		{
			name: "NonOKSuccessStatus",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(203, `{"results":[{"created_at":"Mon, 02 Jan 2023 15:04:05 +0000"}]}`), nil
				},
			},
			wantItems:   1,
			wantHasMore: true,
		},
		{
			name: "Redirect",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(304, `{"results":[]}`), nil
				},
			},
			wantErr: true,
		},
		{
			name: "MalformedJSON",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(200, "not json"), nil
				},
			},
			wantErr: true,
		},
		{
			name: "MissingResults",
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(200, `{"error":"rate limited"}`), nil
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewHTTPSource(HTTPConfig{
				Client: &http.Client{Transport: tt.transport},
				URL:    "http://example.com/search.json",
			})
			if err != nil {
				t.Fatalf("NewHTTPSource() failed: %v", err)
			}

			page, err := src.FetchPage(context.Background(), 1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchPage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var fe *FetchError
				if !errors.As(err, &fe) || fe.Page != 1 {
					t.Errorf("FetchPage() error = %v, want *FetchError for page 1", err)
				}
				return
			}
			if len(page.Items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(page.Items), tt.wantItems)
			}
			if page.HasMore != tt.wantHasMore {
				t.Errorf("HasMore = %v, want %v", page.HasMore, tt.wantHasMore)
			}
		})
	}
}

func TestHTTPSource_SendsPageParameter(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages = append(pages, r.URL.Query().Get("page"))
		if r.URL.Query().Get("page") == "3" {
			_, _ = io.WriteString(w, `{"results":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"results":[{"created_at":"Mon, 02 Jan 2023 15:04:05 +0000"}]}`)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPConfig{URL: srv.URL + "/search.json?q=polar", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPSource() failed: %v", err)
	}

	p := NewPager(src, 0)
	for p.Next(context.Background()) {
	}

	if p.Termination() != Exhausted {
		t.Fatalf("Termination() = %v, err = %v", p.Termination(), p.Err())
	}
	want := []string{"1", "2", "3"}
	if strings.Join(pages, ",") != strings.Join(want, ",") {
		t.Errorf("requested pages = %v, want %v", pages, want)
	}
}

func TestHTTPSource_ContextCanceled(t *testing.T) {
	src, err := NewHTTPSource(HTTPConfig{
		URL:      "http://example.com/search.json",
		PageRate: 0.001,
		Client: &http.Client{Transport: &MockRoundTripper{
			RoundTripFunc: func(req *http.Request) (*http.Response, error) {
				return jsonResponse(200, `{"results":[]}`), nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("NewHTTPSource() failed: %v", err)
	}

	// The first request consumes the only token.
	if _, err := src.FetchPage(context.Background(), 1); err != nil {
		t.Fatalf("first FetchPage() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.FetchPage(ctx, 2); err == nil {
		t.Error("FetchPage() with canceled context should fail")
	}
}
