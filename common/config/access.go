package config

import (
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const DefaultMigrationsPath = "./migrations"

// Load reads the configuration at configPath over the defaults. A directory is
// loaded file by file in name order, each file overriding the previous. If
// nothing exists at configPath, the defaults are written there first.
func Load(configPath string) (*MainRepoConfig, error) {
	c := NewDefaultMainConfig()

	info, err := os.Stat(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if os.IsNotExist(err) {
		fmt.Println("Generating new configuration...")
		configBytes, err := yaml.Marshal(c)
		if err != nil {
			return nil, err
		}
		if err = os.WriteFile(configPath, configBytes, 0600); err != nil {
			return nil, err
		}
		if info, err = os.Stat(configPath); err != nil {
			return nil, err
		}
	}

	pathsOrdered := make([]string, 0)
	if info.IsDir() {
		logrus.Info("Config is a directory - loading all files over top of each other")

		files, err := os.ReadDir(configPath)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			pathsOrdered = append(pathsOrdered, path.Join(configPath, f.Name()))
		}
		sort.Strings(pathsOrdered)
	} else {
		pathsOrdered = append(pathsOrdered, configPath)
	}

	for _, p := range pathsOrdered {
		logrus.Info("Loading config file: ", p)
		buffer, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err = yaml.Unmarshal(buffer, &c); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", p, err)
		}
	}

	if err = Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
