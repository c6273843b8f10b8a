package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/orgscope/pkg/scopedcache"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LoadPolicyFile reads a TTL policy from YAML. Fields absent from the file
// keep their defaults; per-resource long TTLs are merged into the defaults.
func LoadPolicyFile(path string) (scopedcache.TTLPolicy, error) {
	policy := scopedcache.DefaultTTLPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read policy file: %w", err)
	}

	var override scopedcache.TTLPolicy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return policy, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if override.Short > 0 {
		policy.Short = override.Short
	}
	if override.Medium > 0 {
		policy.Medium = override.Medium
	}
	if override.DefaultLong > 0 {
		policy.DefaultLong = override.DefaultLong
	}
	for res, ttl := range override.Long {
		policy.Long[res] = ttl
	}
	if override.WarmThreshold > 0 {
		policy.WarmThreshold = override.WarmThreshold
	}
	if override.HotThreshold > 0 {
		policy.HotThreshold = override.HotThreshold
	}
	if override.PopularityWindow > 0 {
		policy.PopularityWindow = override.PopularityWindow
	}

	if err := policy.Validate(); err != nil {
		return policy, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return policy, nil
}

// WatchPolicyFile reloads the policy file whenever it changes and passes the
// result to apply, until ctx is done. The directory is watched so that
// editors and config managers replacing the file by rename are seen. A file
// that fails to load is logged and the previous policy stays in effect.
func WatchPolicyFile(ctx context.Context, path string, log *logrus.Logger, apply func(scopedcache.TTLPolicy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			policy, err := LoadPolicyFile(abs)
			if err != nil {
				log.WithError(err).WithField("path", abs).Warn("ignoring invalid policy file")
				continue
			}
			if err := apply(policy); err != nil {
				log.WithError(err).WithField("path", abs).Warn("failed to apply policy")
				continue
			}
			log.WithField("path", abs).Info("policy file reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("policy watcher error")
		}
	}
}
