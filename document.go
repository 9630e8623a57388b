package trackline

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// UnmarshalProject parses a project document. JSON is tried first, then
// YAML. The loaded project gets its IDs normalized with AssignIDs and is
// validated; missing tempo and meter fall back to the defaults.
func UnmarshalProject(b []byte) (*Project, error) {
	var p Project
	if errJSON := json.Unmarshal(b, &p); errJSON != nil {
		p = Project{}
		if errYaml := yaml.Unmarshal(b, &p); errYaml != nil {
			return nil, errors.Wrapf(ErrInvalidParameter, "project could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	if p.BPM == 0 {
		p.BPM = DefaultBPM
	}
	if p.BeatsPerBar == 0 {
		p.BeatsPerBar = DefaultBeatsPerBar
	}
	p.AssignIDs()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReadProject reads a project document from r.
func ReadProject(r io.Reader) (*Project, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not read project")
	}
	return UnmarshalProject(b)
}

// WriteProject writes p to w as YAML.
func WriteProject(w io.Writer, p *Project) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return errors.Wrap(err, "could not marshal project")
	}
	return enc.Close()
}

// LoadProjectFile reads a .yml or .json project document from disk.
func LoadProjectFile(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open project %v", path)
	}
	defer f.Close()
	p, err := ReadProject(f)
	if err != nil {
		return nil, errors.Wrapf(err, "project %v", path)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// SaveProjectFile writes p to path, as JSON if the extension is .json and
// as YAML otherwise.
func SaveProjectFile(path string, p *Project) error {
	var contents []byte
	var err error
	if filepath.Ext(path) == ".json" {
		contents, err = json.MarshalIndent(p, "", "  ")
	} else {
		contents, err = yaml.Marshal(p)
	}
	if err != nil {
		return errors.Wrap(err, "could not marshal project")
	}
	if err := os.WriteFile(path, contents, 0644); err != nil {
		return errors.Wrapf(err, "could not write project %v", path)
	}
	return nil
}
