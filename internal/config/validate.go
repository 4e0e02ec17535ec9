package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// VersionKind classifies a host version selector.
type VersionKind string

const (
	VersionLatest VersionKind = "latest"
	VersionTag    VersionKind = "tag"
	VersionCommit VersionKind = "commit"
)

var (
	pythonVersionPattern = regexp.MustCompile(`^\d+(\.\d+){1,2}$`)
	commitPattern        = regexp.MustCompile(`^[0-9a-f]{7,40}$`)
)

// ClassifyVersion tells a commit hash from a release tag or branch name.
func ClassifyVersion(selector string) VersionKind {
	switch {
	case selector == "" || strings.EqualFold(selector, "latest"):
		return VersionLatest
	case commitPattern.MatchString(selector):
		return VersionCommit
	default:
		return VersionTag
	}
}

// Validate checks the configuration invariants and reports every violation.
func (c TestConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, fmt.Errorf("name must not be empty"))
	}
	if len(c.EnabledPlatforms()) == 0 {
		errs = append(errs, fmt.Errorf("at least one platform must be enabled"))
	}
	if c.Verify != nil && *c.Verify && len(c.ExpectedNodes) == 0 {
		errs = append(errs, fmt.Errorf("verify is enabled but expectedNodes is empty"))
	}

	seen := sets.New[string]()
	for i, node := range c.ExpectedNodes {
		switch {
		case strings.TrimSpace(node) == "":
			errs = append(errs, fmt.Errorf("expectedNodes[%d] is empty", i))
		case seen.Has(node):
			errs = append(errs, fmt.Errorf("expectedNodes contains %q more than once", node))
		}
		seen.Insert(node)
	}

	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Workflow.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("workflow.timeout must be positive, got %s", c.Workflow.Timeout))
	}
	if !pythonVersionPattern.MatchString(c.PythonVersion) {
		errs = append(errs, fmt.Errorf("pythonVersion %q must look like 3.10", c.PythonVersion))
	}
	if strings.TrimSpace(c.ComfyUIVersion) == "" {
		errs = append(errs, fmt.Errorf("comfyuiVersion must not be empty"))
	}
	if v := c.WindowsPortable.PortableVersion; c.WindowsPortable.Enabled && v != "" && !strings.EqualFold(v, "latest") {
		if _, err := semver.NewVersion(v); err != nil {
			errs = append(errs, fmt.Errorf("windowsPortable.portableVersion %q is neither latest nor a release version", v))
		}
	}

	if agg := utilerrors.NewAggregate(errs); agg != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, agg)
	}
	return nil
}
