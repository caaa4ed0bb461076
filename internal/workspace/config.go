package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFile is the file name Discover looks for.
const ConfigFile = "arbor.toml"

type config struct {
	DB       string          `toml:"db"`
	Projects []projectConfig `toml:"projects"`
	Scripts  []scriptConfig  `toml:"scripts"`
}

type projectConfig struct {
	Name     string   `toml:"name"`
	Path     string   `toml:"path"`
	Roots    []string `toml:"roots"`
	Requires []string `toml:"requires"`
	Exclude  []string `toml:"exclude"`
}

type scriptConfig struct {
	Language   string   `toml:"language"`
	Extensions []string `toml:"extensions"`
	Path       string   `toml:"path"`
	Roots      []string `toml:"roots"`
}

// Load reads a TOML workspace file. Relative paths inside it are resolved
// against the file's directory.
func Load(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse decodes a TOML workspace definition rooted at root.
func Parse(data []byte, root string) (*Workspace, error) {
	var cfg config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse workspace: %w", err)
	}
	if len(cfg.Projects) == 0 {
		return nil, errors.New("parse workspace: no projects defined")
	}

	ws := &Workspace{Root: filepath.Clean(root)}
	if cfg.DB != "" {
		ws.DB = resolve(ws.Root, cfg.DB)
	}
	for _, pc := range cfg.Projects {
		if pc.Name == "" {
			return nil, errors.New("parse workspace: project without a name")
		}
		dir := resolve(ws.Root, pc.Path)
		p := &Project{
			Name:     pc.Name,
			Dir:      dir,
			Requires: pc.Requires,
			Exclude:  pc.Exclude,
		}
		roots := pc.Roots
		if len(roots) == 0 {
			roots = []string{"."}
		}
		for i, r := range roots {
			p.Fragments = append(p.Fragments, Fragment{Dir: resolve(dir, r), Position: i})
		}
		ws.Projects = append(ws.Projects, p)
	}
	ws.index()
	if len(ws.byName) != len(ws.Projects) {
		return nil, errors.New("parse workspace: duplicate project name")
	}
	for _, p := range ws.Projects {
		for _, r := range p.Requires {
			if ws.byName[r] == nil {
				return nil, fmt.Errorf("parse workspace: project %s requires unknown project %s", p.Name, r)
			}
		}
	}
	for _, sc := range cfg.Scripts {
		if sc.Language == "" || sc.Path == "" || len(sc.Extensions) == 0 {
			return nil, fmt.Errorf("parse workspace: script entry %q needs language, path and extensions", sc.Language)
		}
		ws.Scripts = append(ws.Scripts, Script{
			Language:   sc.Language,
			Extensions: sc.Extensions,
			Path:       resolve(ws.Root, sc.Path),
			Roots:      sc.Roots,
		})
	}
	return ws, nil
}

// Discover walks up from dir looking for ConfigFile. When none is found it
// returns Single(dir).
func Discover(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("discover workspace: %w", err)
	}
	for d := abs; ; d = filepath.Dir(d) {
		candidate := filepath.Join(d, ConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
		if filepath.Dir(d) == d {
			break
		}
	}
	return Single(abs), nil
}

func resolve(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
