package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
)

// PortableRepository publishes the portable Windows distribution.
const PortableRepository = "comfyanonymous/ComfyUI"

const (
	portableAssetPrefix = "ComfyUI_windows_portable"
	portableAssetName   = "ComfyUI_windows_portable_nvidia.7z"
)

// ErrReleaseNotFound is returned when no release matches the selector.
var ErrReleaseNotFound = errors.New("portable release not found")

// ReleaseSource lists the releases of a repository. *selfupdate.GitHubSource
// satisfies it.
type ReleaseSource interface {
	ListReleases(ctx context.Context, repository selfupdate.Repository) ([]selfupdate.SourceRelease, error)
}

// NewGitHubReleases returns a ReleaseSource backed by the GitHub API. The
// GITHUB_TOKEN environment variable is used when set.
func NewGitHubReleases() (ReleaseSource, error) {
	src, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// PortableRelease is a resolved portable archive.
type PortableRelease struct {
	Tag       string
	Version   *semver.Version
	AssetName string
	URL       string
	Size      int
}

// ResolvePortableRelease finds the release for selector, "latest" or a
// version such as v0.3.10, that ships a portable archive.
func ResolvePortableRelease(ctx context.Context, src ReleaseSource, selector string) (PortableRelease, error) {
	releases, err := src.ListReleases(ctx, selfupdate.ParseSlug(PortableRepository))
	if err != nil {
		return PortableRelease{}, fmt.Errorf("failed to list releases of %s: %w", PortableRepository, err)
	}

	var want *semver.Version
	latest := selector == "" || strings.EqualFold(selector, "latest")
	if !latest {
		if want, err = semver.NewVersion(selector); err != nil {
			return PortableRelease{}, fmt.Errorf("invalid portable version %q: %w", selector, err)
		}
	}

	var candidates []PortableRelease
	for _, rel := range releases {
		if rel.GetDraft() || (latest && rel.GetPrerelease()) {
			continue
		}
		v, err := semver.NewVersion(rel.GetTagName())
		if err != nil {
			continue
		}
		if want != nil && !v.Equal(want) {
			continue
		}
		asset := portableAsset(rel.GetAssets())
		if asset == nil {
			continue
		}
		candidates = append(candidates, PortableRelease{
			Tag:       rel.GetTagName(),
			Version:   v,
			AssetName: asset.GetName(),
			URL:       asset.GetBrowserDownloadURL(),
			Size:      asset.GetSize(),
		})
	}

	if len(candidates) == 0 {
		return PortableRelease{}, fmt.Errorf("%w: %s in %s", ErrReleaseNotFound, selector, PortableRepository)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Version.GreaterThan(candidates[j].Version)
	})
	return candidates[0], nil
}

// portableAsset prefers the nvidia archive and falls back to any other
// portable .7z the release carries.
func portableAsset(assets []selfupdate.SourceAsset) selfupdate.SourceAsset {
	var fallback selfupdate.SourceAsset
	for _, a := range assets {
		name := a.GetName()
		if name == portableAssetName {
			return a
		}
		if fallback == nil && strings.HasPrefix(name, portableAssetPrefix) && strings.HasSuffix(name, ".7z") {
			fallback = a
		}
	}
	return fallback
}
