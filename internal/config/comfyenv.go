package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ComfyEnvFileName is the isolated-environment declaration an extension may
// ship next to its code.
const ComfyEnvFileName = "comfy-env.toml"

// ComfyEnv is the part of comfy-env.toml the harness acts on.
type ComfyEnv struct {
	// CUDAPackages are import names of GPU-only packages the host must mock.
	CUDAPackages []string
	// NodeReqs are other extensions to clone into custom_nodes.
	NodeReqs []NodeReq
}

// NodeReq is one dependency extension.
type NodeReq struct {
	Name string `json:"name"`
	Repo string `json:"repo"`
}

// CloneURL returns a git URL for the repository, expanding owner/name
// shorthands to GitHub.
func (r NodeReq) CloneURL() string {
	if strings.Contains(r.Repo, "://") || strings.HasPrefix(r.Repo, "git@") {
		return r.Repo
	}
	return "https://github.com/" + strings.TrimSuffix(r.Repo, ".git") + ".git"
}

// LoadComfyEnv reads comfy-env.toml from extensionDir. A missing file yields
// an empty ComfyEnv.
func LoadComfyEnv(extensionDir string) (ComfyEnv, error) {
	data, err := os.ReadFile(filepath.Join(extensionDir, ComfyEnvFileName))
	if errors.Is(err, os.ErrNotExist) {
		return ComfyEnv{}, nil
	}
	if err != nil {
		return ComfyEnv{}, err
	}
	return ParseComfyEnv(data)
}

// ParseComfyEnv extracts CUDA packages from every environment table with a
// cuda subtable, and dependency nodes from [node_reqs]. Package names are
// normalized to their import form (flash-attn becomes flash_attn).
func ParseComfyEnv(data []byte) (ComfyEnv, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return ComfyEnv{}, fmt.Errorf("failed to parse %s: %w", ComfyEnvFileName, err)
	}

	var env ComfyEnv
	for name, value := range doc {
		table, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if name == "node_reqs" {
			reqs, err := parseNodeReqs(table)
			if err != nil {
				return ComfyEnv{}, err
			}
			env.NodeReqs = reqs
			continue
		}
		cuda, ok := table["cuda"].(map[string]any)
		if !ok {
			continue
		}
		for pkg := range cuda {
			env.CUDAPackages = append(env.CUDAPackages, strings.ReplaceAll(pkg, "-", "_"))
		}
	}
	sort.Strings(env.CUDAPackages)
	return env, nil
}

func parseNodeReqs(table map[string]any) ([]NodeReq, error) {
	reqs := make([]NodeReq, 0, len(table))
	for name, value := range table {
		var repo string
		switch v := value.(type) {
		case string:
			repo = v
		case map[string]any:
			repo, _ = v["repo"].(string)
		}
		if repo == "" {
			return nil, fmt.Errorf("node_reqs.%s: expected a repository string or a table with repo", name)
		}
		reqs = append(reqs, NodeReq{Name: name, Repo: repo})
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Name < reqs[j].Name })
	return reqs, nil
}
