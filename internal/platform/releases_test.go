package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsset struct {
	name string
	url  string
}

func (a fakeAsset) GetID() int64                  { return 1 }
func (a fakeAsset) GetName() string               { return a.name }
func (a fakeAsset) GetSize() int                  { return 1024 }
func (a fakeAsset) GetBrowserDownloadURL() string { return a.url }

type fakeRelease struct {
	tag        string
	draft      bool
	prerelease bool
	assets     []selfupdate.SourceAsset
}

func (r fakeRelease) GetID() int64                        { return 1 }
func (r fakeRelease) GetTagName() string                  { return r.tag }
func (r fakeRelease) GetDraft() bool                      { return r.draft }
func (r fakeRelease) GetPrerelease() bool                 { return r.prerelease }
func (r fakeRelease) GetPublishedAt() time.Time           { return time.Time{} }
func (r fakeRelease) GetReleaseNotes() string             { return "" }
func (r fakeRelease) GetName() string                     { return r.tag }
func (r fakeRelease) GetURL() string                      { return "" }
func (r fakeRelease) GetAssets() []selfupdate.SourceAsset { return r.assets }

type fakeSource struct {
	releases []selfupdate.SourceRelease
	err      error
}

func (s fakeSource) ListReleases(ctx context.Context, repo selfupdate.Repository) ([]selfupdate.SourceRelease, error) {
	return s.releases, s.err
}

func release(tag string, assets ...string) fakeRelease {
	r := fakeRelease{tag: tag}
	for _, a := range assets {
		r.assets = append(r.assets, fakeAsset{name: a, url: "https://example.invalid/" + tag + "/" + a})
	}
	return r
}

func testSource() fakeSource {
	next := release("v0.4.0-rc1", portableAssetName)
	next.prerelease = true
	draft := release("v0.5.0", portableAssetName)
	draft.draft = true

	return fakeSource{releases: []selfupdate.SourceRelease{
		release("v0.3.9", "ComfyUI_windows_portable_nvidia_cu121_or_cpu.7z"),
		release("v0.3.10", "source.zip", "ComfyUI_windows_portable_nvidia_cu118.7z", portableAssetName),
		release("v0.3.11", "source.zip"),
		release("not-a-version", portableAssetName),
		next,
		draft,
	}}
}

func TestResolvePortableRelease(t *testing.T) {
	tests := []struct {
		selector  string
		wantTag   string
		wantAsset string
	}{
		{"latest", "v0.3.10", portableAssetName},
		{"", "v0.3.10", portableAssetName},
		{"v0.3.9", "v0.3.9", "ComfyUI_windows_portable_nvidia_cu121_or_cpu.7z"},
		{"0.3.10", "v0.3.10", portableAssetName},
		{"v0.4.0-rc1", "v0.4.0-rc1", portableAssetName},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			rel, err := ResolvePortableRelease(context.Background(), testSource(), tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTag, rel.Tag)
			assert.Equal(t, tt.wantAsset, rel.AssetName)
			assert.Contains(t, rel.URL, tt.wantTag)
		})
	}
}

func TestResolvePortableRelease_Errors(t *testing.T) {
	_, err := ResolvePortableRelease(context.Background(), testSource(), "v0.3.11")
	assert.ErrorIs(t, err, ErrReleaseNotFound)

	_, err = ResolvePortableRelease(context.Background(), testSource(), "nightly")
	assert.ErrorContains(t, err, "invalid portable version")

	_, err = ResolvePortableRelease(context.Background(), fakeSource{err: errors.New("rate limited")}, "latest")
	assert.ErrorContains(t, err, "rate limited")
}
