package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

// manifestSchema is unified with every manifest before extraction, so shape
// errors carry CUE's own diagnostics.
const manifestSchema = `
#Resource: {
	type:   string & !=""
	name?:  string & !=""
	state:  *"present" | "absent" | "active" | "inactive"
	spec?:  {...}
	labels?: [string]: string
}

workspace?: {
	name?:      string
	region?:    string
	token_env?: string
	base_url?:  string
}

resources?: [...#Resource] | {[string]: #Resource}
`

// Parser parses CUE manifest files.
type Parser struct {
	ctx      *cue.Context
	validate *validator.Validate
}

// NewParser creates a manifest parser.
func NewParser() *Parser {
	return &Parser{
		ctx:      cuecontext.New(),
		validate: validator.New(),
	}
}

// Load parses one or more manifest sources (files or directories of .cue
// files), unifies them, and returns the validated manifest.
func (p *Parser) Load(sources ...string) (*Manifest, error) {
	if len(sources) == 0 {
		return nil, engine.NewValidationError("no manifest sources provided")
	}

	var files []string
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("manifest source %s: %v", source, err))
		}
		if info.IsDir() {
			found, err := cueFilesIn(source)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return nil, engine.NewValidationError(fmt.Sprintf("no .cue files in %s", source))
			}
			files = append(files, found...)
		} else {
			files = append(files, source)
		}
	}

	value := p.ctx.CompileString(manifestSchema, cue.Filename("schema.cue"))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("read manifest %s: %v", file, err))
		}
		fileVal := p.ctx.CompileString(string(content), cue.Filename(file))
		if err := fileVal.Err(); err != nil {
			return nil, cueError(file, err)
		}
		value = value.Unify(fileVal)
	}
	if err := value.Validate(cue.Concrete(false)); err != nil {
		return nil, cueError(strings.Join(files, ", "), err)
	}

	return p.extract(value, files)
}

// LoadInline parses inline CUE content, for tests and one-off validation.
func (p *Parser) LoadInline(content string) (*Manifest, error) {
	value := p.ctx.CompileString(manifestSchema, cue.Filename("schema.cue"))
	inline := p.ctx.CompileString(content, cue.Filename("inline.cue"))
	if err := inline.Err(); err != nil {
		return nil, cueError("inline", err)
	}
	value = value.Unify(inline)
	if err := value.Validate(cue.Concrete(false)); err != nil {
		return nil, cueError("inline", err)
	}
	return p.extract(value, []string{"inline"})
}

func (p *Parser) extract(value cue.Value, files []string) (*Manifest, error) {
	manifest := &Manifest{
		SourceFiles: files,
		ParsedAt:    time.Now(),
	}

	workspaceVal := value.LookupPath(cue.ParsePath("workspace"))
	if workspaceVal.Exists() {
		if err := workspaceVal.Decode(&manifest.Workspace); err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("decode workspace: %v", err))
		}
	}

	resourcesVal := value.LookupPath(cue.ParsePath("resources"))
	if resourcesVal.Exists() {
		decls, err := p.extractResources(resourcesVal)
		if err != nil {
			return nil, err
		}
		manifest.Resources = decls
	}

	if err := p.finalize(manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// extractResources accepts either a list of resources or a map keyed by
// resource name.
func (p *Parser) extractResources(value cue.Value) ([]ResourceDecl, error) {
	var decls []ResourceDecl

	switch value.Kind() {
	case cue.ListKind:
		list, err := value.List()
		if err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("resources: %v", err))
		}
		idx := 0
		for list.Next() {
			decl, err := p.decodeResource(fmt.Sprintf("resources[%d]", idx), "", list.Value())
			if err != nil {
				return nil, err
			}
			decls = append(decls, decl)
			idx++
		}
	case cue.StructKind:
		iter, err := value.Fields(cue.All())
		if err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("resources: %v", err))
		}
		for iter.Next() {
			key := strings.Trim(iter.Selector().String(), `"`)
			decl, err := p.decodeResource("resources."+key, key, iter.Value())
			if err != nil {
				return nil, err
			}
			decls = append(decls, decl)
		}
		// Map iteration order is not meaningful; apply order must be stable.
		sort.Slice(decls, func(i, j int) bool {
			if decls[i].Type != decls[j].Type {
				return decls[i].Type < decls[j].Type
			}
			return decls[i].Name < decls[j].Name
		})
	default:
		return nil, engine.NewValidationError("resources must be a list or a map")
	}
	return decls, nil
}

func (p *Parser) decodeResource(path, key string, value cue.Value) (ResourceDecl, error) {
	var decl ResourceDecl
	if err := value.Decode(&decl); err != nil {
		return decl, engine.NewValidationError(fmt.Sprintf("%s: %v", path, err))
	}
	if decl.Name == "" {
		decl.Name = key
	}
	if decl.State == "" {
		decl.State = engine.StatePresent
	}
	if err := p.validate.Struct(decl); err != nil {
		return decl, engine.NewValidationError(fmt.Sprintf("%s: %v", path, err))
	}
	if !decl.State.Valid() {
		return decl, engine.NewValidationError(fmt.Sprintf("%s: unknown state %q", path, decl.State))
	}
	return decl, nil
}

// regionDefaultTypes are the resource types whose create call takes a plain
// region parameter. Only these receive the workspace region default; for the
// rest region is either meaningless (domain, tag) or constrained (reserved_ip
// takes region exclusive-or droplet_id), and injecting one would invalidate
// an otherwise valid spec.
var regionDefaultTypes = map[string]bool{
	"droplet":            true,
	"volume":             true,
	"load_balancer":      true,
	"database_cluster":   true,
	"kubernetes_cluster": true,
	"vpc":                true,
	"spaces_bucket":      true,
}

// finalize applies workspace defaults and rejects duplicate declarations.
func (p *Parser) finalize(manifest *Manifest) error {
	seen := make(map[string]bool, len(manifest.Resources))
	for i := range manifest.Resources {
		decl := &manifest.Resources[i]
		key := decl.Type + "/" + decl.Name
		if seen[key] {
			return engine.NewValidationError(fmt.Sprintf("duplicate resource %s", key))
		}
		seen[key] = true

		if manifest.Workspace.Region != "" && regionDefaultTypes[decl.Type] {
			if decl.Spec == nil {
				decl.Spec = map[string]any{}
			}
			if _, ok := decl.Spec["region"]; !ok {
				decl.Spec["region"] = manifest.Workspace.Region
			}
		}
	}
	return nil
}

func cueFilesIn(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("walk %s: %v", dir, err))
	}
	sort.Strings(files)
	return files, nil
}

func cueError(source string, err error) error {
	details := cueerrors.Details(err, nil)
	return engine.NewValidationError(fmt.Sprintf("manifest %s: %s", source, strings.TrimSpace(details)))
}
