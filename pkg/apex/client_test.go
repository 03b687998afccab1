package apex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestClientDo(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotBody, gotType, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotType = r.Header.Get("Content-Type")
		gotToken = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"7","name":"ada"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithHeader("Authorization", "Bearer x"))

	tests := []struct {
		name      string
		method    string
		path      string
		query     any
		body      any
		wantPath  string
		wantQuery string
		wantBody  string
		wantType  string
	}{
		{
			name:      "get with query struct",
			method:    http.MethodGet,
			path:      "/api/users/7",
			query:     struct{ Verbose bool `json:"verbose"` }{true},
			wantPath:  "/api/users/7",
			wantQuery: "verbose=true",
		},
		{
			name:      "list parameters repeat",
			method:    http.MethodDelete,
			path:      "api/users",
			query:     map[string]any{"id": []any{"1", "2"}},
			wantPath:  "/api/users",
			wantQuery: "id=1&id=2",
		},
		{
			name:     "post with body",
			method:   http.MethodPost,
			path:     "/api/users",
			body:     map[string]any{"name": "ada"},
			wantPath: "/api/users",
			wantBody: `{"name":"ada"}`,
			wantType: "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out user
			err := c.Do(context.Background(), tt.method, tt.path, tt.query, tt.body, &out)
			require.NoError(t, err)

			assert.Equal(t, tt.method, gotMethod)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, tt.wantQuery, gotQuery)
			assert.Equal(t, tt.wantBody, gotBody)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, "Bearer x", gotToken)
			assert.Equal(t, user{ID: "7", Name: "ada"}, out)
		})
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such user", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Do(context.Background(), http.MethodGet, "/api/users/1", nil, nil, nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), "no such user")
}

func TestClientAbsoluteURL(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient("http://invalid.localhost:1")
	require.NoError(t, c.Do(context.Background(), http.MethodGet, srv.URL+"/ping", nil, nil, nil))
	assert.True(t, hit)
}

func TestClientCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClient(srv.URL).Do(ctx, http.MethodGet, "/", nil, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    url.Values
		wantErr bool
	}{
		{name: "nil", in: nil, want: nil},
		{name: "values pass through", in: url.Values{"a": {"1"}}, want: url.Values{"a": {"1"}}},
		{
			name: "struct fields",
			in: struct {
				Page  int      `json:"page"`
				Tags  []string `json:"tags"`
				Skip  *string  `json:"skip"`
				Inner struct {
					A int `json:"a"`
				} `json:"inner"`
			}{Page: 2, Tags: []string{"x", "y"}},
			want: url.Values{"page": {"2"}, "tags": {"x", "y"}, "inner": {`{"a":0}`}},
		},
		{name: "not an object", in: []int{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Query(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOmitAndParam(t *testing.T) {
	in := struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Version int      // no tag
		Path    []string `json:"path"`
	}{ID: "a b", Name: "ada", Version: 3, Path: []string{"docs", "intro"}}

	assert.Equal(t, map[string]any{"name": "ada", "Version": float64(3)}, Omit(in, "id", "path"))
	assert.Nil(t, Omit(42))

	assert.Equal(t, "a b", Param(in, "id"))
	assert.Equal(t, "3", Param(&in, "version"))
	assert.Equal(t, "docs/intro", Param(in, "path"))
	assert.Equal(t, "", Param(in, "missing"))
	assert.Equal(t, "9", Param(map[string]any{"id": 9}, "id"))
	assert.Equal(t, "", Param(nil, "id"))

	untagged := struct {
		ID   string
		Name string
	}{ID: "42", Name: "x"}
	assert.Equal(t, "42", Param(untagged, "id"))
	assert.Equal(t, map[string]any{"Name": "x"}, Omit(untagged, "id"))
	assert.Equal(t, map[string]any{"Name": "x"}, Omit(&untagged, "id"))

	renamed := struct {
		Slug string `json:"slug,omitempty"`
		Body string `json:"body"`
	}{Slug: "s", Body: "b"}
	assert.Equal(t, map[string]any{"body": "b"}, Omit(renamed, "slug"))
}

func TestPathSegments(t *testing.T) {
	in := struct {
		Path  []string `json:"path"`
		Name  string   `json:"name"`
		Parts [2]string
	}{Path: []string{"a b", "c/d", "e"}, Name: "x/y", Parts: [2]string{"p", "q"}}

	assert.Equal(t, "a%20b/c%2Fd/e", PathSegments(in, "path"))
	assert.Equal(t, "x%2Fy", PathSegments(in, "name"))
	assert.Equal(t, "p/q", PathSegments(&in, "parts"))
	assert.Equal(t, "a/b", PathSegments(map[string]any{"path": []any{"a", "b"}}, "path"))
	assert.Equal(t, "", PathSegments(in, "missing"))
}

func TestDefine(t *testing.T) {
	h := Define(func(ctx context.Context, in user) (string, error) {
		if in.ID == "" {
			return "", errors.New("id required")
		}
		return in.Name + "#" + in.ID, nil
	})

	assert.Equal(t, "user", h.In().Name())
	assert.Equal(t, "string", h.Out().Kind().String())

	out, err := h.Decode(context.Background(), json.RawMessage(`{"id":"1","name":"ada"}`))
	require.NoError(t, err)
	assert.Equal(t, "ada#1", out)

	_, err = h.Decode(context.Background(), nil)
	assert.EqualError(t, err, "id required")

	_, err = h.Call(context.Background(), 12)
	assert.Error(t, err)

	_, err = h.Decode(context.Background(), []byte("{"))
	assert.Error(t, err)

	var zero Handler
	_, err = zero.Call(context.Background(), nil)
	assert.Error(t, err)
}
