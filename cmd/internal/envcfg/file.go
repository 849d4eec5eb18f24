package envcfg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Prefix is prepended to every key derived from a config file.
const Prefix = "TOURDESK_"

// ParseFile reads a .yaml/.yml or .toml file and flattens it into env-style keys:
//
//	http:
//	  addr: ":9090"      ->  TOURDESK_HTTP_ADDR=:9090
//	cors:
//	  origins: [a, b]    ->  TOURDESK_CORS_ORIGINS=a,b
func ParseFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tree := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(bytes.NewReader(raw)).Decode(&tree); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(raw), &tree); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension (want .yaml, .yml or .toml)", path)
	}

	out := map[string]string{}
	if err := flatten(out, "", tree); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return out, nil
}

// ApplyFile loads path and sets every key that is not already present in the
// environment. Explicit environment variables always win over the file.
// It returns the keys it set, sorted.
func ApplyFile(path string) ([]string, error) {
	kv, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	var set []string
	for k, v := range kv {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return nil, err
		}
		set = append(set, k)
	}
	slices.Sort(set)
	return set, nil
}

func flatten(out map[string]string, prefix string, v any) error {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if err := flatten(out, joinKey(prefix, k), child); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := scalar(item)
			if !ok {
				return fmt.Errorf("%s: lists may only hold scalars", prefix)
			}
			parts = append(parts, s)
		}
		out[Prefix+prefix] = strings.Join(parts, ",")
		return nil
	default:
		s, ok := scalar(t)
		if !ok {
			return fmt.Errorf("%s: unsupported value %T", prefix, v)
		}
		if prefix == "" {
			return fmt.Errorf("top-level value must be a table")
		}
		out[Prefix+prefix] = s
		return nil
	}
}

func joinKey(prefix, k string) string {
	k = strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(strings.TrimSpace(k)))
	if prefix == "" {
		return k
	}
	return prefix + "_" + k
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case nil:
		return "", true
	}
	return "", false
}
