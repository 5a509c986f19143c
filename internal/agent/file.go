package agent

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/agora/pkg/models"
)

// registryFile is the YAML layout of an agents file:
//
//	agents:
//	  - id: claude
//	    aliases: [cc]
//	    type: claude
//	    status: online
//	    backend: anthropic
//	    capabilities:
//	      architecture: 0.9
type registryFile struct {
	Agents []*models.Agent `yaml:"agents"`
}

// LoadFile reads agents from a YAML file. Agents without a status are ONLINE.
func LoadFile(path string) ([]*models.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes agents from YAML bytes.
func ParseFile(data []byte) ([]*models.Agent, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}

	for _, a := range f.Agents {
		if a == nil {
			return nil, fmt.Errorf("parse agents file: empty agent entry")
		}
		a.Status = models.AgentStatus(strings.ToLower(string(a.Status)))
		if a.Status == "" {
			a.Status = models.AgentStatusOnline
		}
		if err := validateAgent(a); err != nil {
			return nil, err
		}
	}
	return f.Agents, nil
}

// LoadFileInto replaces the registry contents with the agents in path.
func LoadFileInto(r *Registry, path string) error {
	agents, err := LoadFile(path)
	if err != nil {
		return err
	}
	return r.Replace(agents)
}
