package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apexerrors "github.com/conneroisu/apex/internal/errors"
	"github.com/conneroisu/apex/internal/types"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		base     string
		wantName string
		wantURL  string
		wantVerb types.HTTPMethod
		slugs    []string
		catchAll []string
	}{
		{
			name:     "static leaf under dynamic folder",
			path:     "users/[id]/posts.get.go",
			base:     "api",
			wantName: "UsersIdPostsGet",
			wantURL:  "/api/users/${id}/posts",
			wantVerb: types.MethodGet,
			slugs:    []string{"id"},
		},
		{
			name:     "dynamic leaf",
			path:     "settings/[orderId].get.go",
			base:     "/api",
			wantName: "SettingsGetByOrderId",
			wantURL:  "/api/settings/${orderId}",
			wantVerb: types.MethodGet,
			slugs:    []string{"orderId"},
		},
		{
			name:     "nested dynamic folders and leaf",
			path:     "tags/products/[id]/[uid].post.go",
			base:     "/api",
			wantName: "TagsProductsIdCreateByUid",
			wantURL:  "/api/tags/products/${id}/${uid}",
			wantVerb: types.MethodPost,
			slugs:    []string{"id", "uid"},
		},
		{
			name:     "root dynamic leaf",
			path:     "[pid].get.go",
			base:     "/api",
			wantName: "GetByPid",
			wantURL:  "/api/${pid}",
			wantVerb: types.MethodGet,
			slugs:    []string{"pid"},
		},
		{
			name:     "index leaf is elided",
			path:     "users/index.put.go",
			base:     "/api/",
			wantName: "UsersUpdate",
			wantURL:  "/api/users",
			wantVerb: types.MethodPut,
		},
		{
			name:     "root index",
			path:     "index.get.go",
			base:     "/api",
			wantName: "Get",
			wantURL:  "/api",
			wantVerb: types.MethodGet,
		},
		{
			name:     "delete maps to remove",
			path:     "comments/tags/posts.delete.go",
			base:     "/api",
			wantName: "CommentsTagsPostsRemove",
			wantURL:  "/api/comments/tags/posts",
			wantVerb: types.MethodDelete,
		},
		{
			name:     "kebab segments become pascal",
			path:     "user-profiles/[user-id]/avatar_image.get.go",
			base:     "/api",
			wantName: "UserProfilesUserIdAvatarImageGet",
			wantURL:  "/api/user-profiles/${user-id}/avatar_image",
			wantVerb: types.MethodGet,
			slugs:    []string{"user-id"},
		},
		{
			name:     "catch-all slug",
			path:     "files/[...path].get.go",
			base:     "/api",
			wantName: "FilesGetByPath",
			wantURL:  "/api/files/${path}",
			wantVerb: types.MethodGet,
			slugs:    []string{"path"},
			catchAll: []string{"path"},
		},
		{
			name:     "catch-all under dynamic folder",
			path:     "repos/[owner]/[...tree].get.go",
			base:     "/api",
			wantName: "ReposOwnerGetByTree",
			wantURL:  "/api/repos/${owner}/${tree}",
			wantVerb: types.MethodGet,
			slugs:    []string{"owner", "tree"},
			catchAll: []string{"tree"},
		},
		{
			name:     "duplicate slug appears once",
			path:     "[id]/children/[id].get.go",
			base:     "/api",
			wantName: "IdChildrenGetById",
			wantURL:  "/api/${id}/children/${id}",
			wantVerb: types.MethodGet,
			slugs:    []string{"id"},
		},
		{
			name:     "absolute base keeps scheme",
			path:     "health.get.go",
			base:     "https://example.com/api/",
			wantName: "HealthGet",
			wantURL:  "https://example.com/api/health",
			wantVerb: types.MethodGet,
		},
		{
			name:     "windows separators",
			path:     `users\[id].delete.go`,
			base:     "/api",
			wantName: "UsersRemoveById",
			wantURL:  "/api/users/${id}",
			wantVerb: types.MethodDelete,
			slugs:    []string{"id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed, err := Derive(tt.path, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, ed.Name)
			assert.Equal(t, tt.wantURL, ed.URLTemplate)
			assert.Equal(t, tt.wantVerb, ed.Method)
			assert.Equal(t, tt.slugs, ed.Slugs)
			assert.Equal(t, tt.catchAll, ed.CatchAll)
			assert.Equal(t, Placeholders(ed.URLTemplate), ed.Slugs)
		})
	}
}

func TestDeriveURLTemplateOrder(t *testing.T) {
	ed, err := Derive("a/[id]/b/[slug].post.go", "api")
	require.NoError(t, err)

	assert.Equal(t, "/api/a/${id}/b/${slug}", ed.URLTemplate)
	assert.Equal(t, []string{"id", "slug"}, ed.Slugs)
	assert.Equal(t, "AIdBCreateBySlug", ed.Name)
}

func TestDeriveErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"unknown verb", "users/list.patch.go"},
		{"no verb", "users/list.go"},
		{"wrong extension", "users/list.get.ts"},
		{"test file", "users/list.get_test.go"},
		{"empty folder", "users//list.get.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive(tt.path, "/api")
			require.Error(t, err)
			var pathErr *apexerrors.PathError
			assert.ErrorAs(t, err, &pathErr)
		})
	}
}

func TestIsEndpoint(t *testing.T) {
	assert.True(t, IsEndpoint("users/[id].get.go"))
	assert.True(t, IsEndpoint("index.delete.go"))
	assert.False(t, IsEndpoint("types.go"))
	assert.False(t, IsEndpoint("helpers.gen.go"))
	assert.False(t, IsEndpoint("users/list.get_test.go"))
}

func TestPascal(t *testing.T) {
	testCases := map[string]string{
		"users":     "Users",
		"orderId":   "OrderId",
		"order-id":  "OrderId",
		"snake_var": "SnakeVar",
		"v1.2":      "V12",
		"":          "",
	}
	for in, want := range testCases {
		assert.Equal(t, want, Pascal(in), in)
	}
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "/", JoinURL(""))
	assert.Equal(t, "/api", JoinURL("api"))
	assert.Equal(t, "/api/x", JoinURL("//api//", "/x/"))
	assert.Equal(t, "http://h/x", JoinURL("http://h/", "x"))
}
