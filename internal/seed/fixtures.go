package seed

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Fixtures is a hand-written data set, loaded from YAML:
//
//	users:
//	  - email: ada@example.com
//	    name: Ada
//	    status: hacking
//	    posts:
//	      - title: First light
//	        content: Hello feed
type Fixtures struct {
	Users []FixtureUser `yaml:"users"`
}

type FixtureUser struct {
	Email    string        `yaml:"email"`
	Name     string        `yaml:"name"`
	Password string        `yaml:"password,omitempty"`
	Status   string        `yaml:"status,omitempty"`
	Posts    []FixturePost `yaml:"posts"`
}

type FixturePost struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

// ParseFixtures decodes a YAML fixture document.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, u := range fx.Users {
		if u.Email == "" {
			return nil, fmt.Errorf("fixture user %d: email is required", i)
		}
	}
	return &fx, nil
}

// LoadFixtures reads and decodes the fixture file at path.
func LoadFixtures(fsys afero.Fs, path string) (*Fixtures, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}
