package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "prospect.yaml"

// Load reads configuration from path (optional; DefaultPath when empty), the
// environment and the defaults, then validates it.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key of d with v so that environment variables
// can override keys absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	walk("", reflect.ValueOf(d).Elem(), func(key string, val any) {
		v.SetDefault(key, val)
	})
}

func walk(prefix string, rv reflect.Value, fn func(string, any)) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name := rt.Field(i).Tag.Get("mapstructure")
		if name == "" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f := rv.Field(i); f.Kind() == reflect.Struct {
			walk(name, f, fn)
		} else {
			fn(name, f.Interface())
		}
	}
}

// Validate checks field ranges and the settings that depend on each other.
func (c *Config) Validate() error {
	var msgs []string

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("mapstructure")
	})
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Value()))
		}
	}

	needSupabase := c.Store.Backend == "supabase" || c.Auth.Mode == "supabase"
	if needSupabase && (c.Supabase.URL == "" || c.Supabase.Key == "") {
		msgs = append(msgs, "supabase.url and supabase.key are required when store.backend or auth.mode is supabase")
	}
	if c.Cache.Backend == "sqlite" && c.Cache.SQLitePath == "" {
		msgs = append(msgs, "cache.sqlite_path is required for the sqlite cache backend")
	}
	if c.Cache.Backend == "filesystem" && c.Cache.Dir == "" {
		msgs = append(msgs, "cache.dir is required for the filesystem cache backend")
	}
	if c.Store.Backend == "sqlite" && c.Cache.SQLitePath == "" {
		msgs = append(msgs, "cache.sqlite_path is required for the sqlite store backend")
	}

	if len(msgs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}
