package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

// LoadFromPaths reads .rego policy files from files or directories. The
// policy name is the file name without extension; user policies default to
// error severity.
func LoadFromPaths(paths []string) ([]Policy, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("policy path %s: %v", path, err))
		}
		if info.IsDir() {
			err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && strings.HasSuffix(p, ".rego") {
					files = append(files, p)
				}
				return nil
			})
			if err != nil {
				return nil, engine.NewValidationError(fmt.Sprintf("walk policy path %s: %v", path, err))
			}
		} else {
			files = append(files, path)
		}
	}
	sort.Strings(files)

	policies := make([]Policy, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("read policy %s: %v", file, err))
		}
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		policies = append(policies, Policy{
			Name:        name,
			Description: fmt.Sprintf("user policy from %s", file),
			Rego:        string(content),
			Severity:    SeverityError,
			Enabled:     true,
		})
	}
	return policies, nil
}
