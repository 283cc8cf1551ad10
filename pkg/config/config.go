// Package config loads the settings of the web frontend and the forum API
// from flags, FORUM_* environment variables and an optional
// .questionforum.yaml file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/securecookie"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	fileName  = ".questionforum" // .yaml is implicit
	envPrefix = "FORUM"

	// keySize suits both the cookie hash key and the CSRF auth key.
	keySize = 32
)

// Web is the configuration of cmd/web.
type Web struct {
	Listen           string        `mapstructure:"listen" validate:"required"`
	APIURL           string        `mapstructure:"api_url" validate:"required,url"`
	SessionKey       string        `mapstructure:"session_key"`
	CSRFKey          string        `mapstructure:"csrf_key" validate:"omitempty,len=32"`
	SecureCookies    bool          `mapstructure:"secure_cookies"`
	QuestionsPerPage int           `mapstructure:"questions_per_page" validate:"min=1,max=100"`
	AnswersPerPage   int           `mapstructure:"answers_per_page" validate:"min=1,max=100"`
	ViewTTL          time.Duration `mapstructure:"view_ttl" validate:"gt=0"`
	Verbose          bool          `mapstructure:"verbose"`
}

// Server is the configuration of cmd/forumd.
type Server struct {
	Listen            string        `mapstructure:"listen" validate:"required"`
	DB                string        `mapstructure:"db" validate:"required"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AllowRegistration bool          `mapstructure:"allow_registration"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	BcryptCost        int           `mapstructure:"bcrypt_cost" validate:"min=4,max=31"`
	Verbose           bool          `mapstructure:"verbose"`
}

func webDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("api_url", "http://localhost:8081/api")
	v.SetDefault("session_key", "")
	v.SetDefault("csrf_key", "")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("questions_per_page", 10)
	v.SetDefault("answers_per_page", 5)
	v.SetDefault("view_ttl", 30*time.Minute)
	v.SetDefault("verbose", false)
}

func serverDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8081")
	v.SetDefault("db", "./questions.db")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("allow_registration", false)
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("verbose", false)
}

// newViper reads the optional config file and binds flags. A missing file
// is not an error; FORUM_CONFIG_PATH adds a directory to search.
func newViper(flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	defaults(v)
	v.SetConfigName(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if override := os.Getenv("FORUM_CONFIG_PATH"); override != "" {
		v.AddConfigPath(override)
	}
	v.AddConfigPath("./")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	if flags != nil {
		// Flags are spelled with dashes, keys with underscores.
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}
	return v, nil
}

// LoadWeb resolves the web frontend configuration.
func LoadWeb(flags *pflag.FlagSet) (Web, error) {
	var c Web
	if err := load(flags, webDefaults, &c); err != nil {
		return Web{}, err
	}
	return c, nil
}

// LoadServer resolves the forum API configuration.
func LoadServer(flags *pflag.FlagSet) (Server, error) {
	var c Server
	if err := load(flags, serverDefaults, &c); err != nil {
		return Server{}, err
	}
	return c, nil
}

func load(flags *pflag.FlagSet, defaults func(*viper.Viper), out any) error {
	v, err := newViper(flags, defaults)
	if err != nil {
		return err
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Keys returns the cookie and CSRF keys. Unset keys are generated, which
// means browser sessions do not survive a restart.
func (c Web) Keys(log *zap.Logger) (session, csrf []byte, err error) {
	if session, err = secret(log, "session_key", c.SessionKey); err != nil {
		return nil, nil, err
	}
	if csrf, err = secret(log, "csrf_key", c.CSRFKey); err != nil {
		return nil, nil, err
	}
	return session, csrf, nil
}

// Secret returns the JWT signing secret, generating one when unset. Tokens
// issued before a restart are then rejected.
func (c Server) Secret(log *zap.Logger) ([]byte, error) {
	return secret(log, "jwt_secret", c.JWTSecret)
}

func secret(log *zap.Logger, key, value string) ([]byte, error) {
	if value != "" {
		return []byte(value), nil
	}
	b := securecookie.GenerateRandomKey(keySize)
	if b == nil {
		return nil, fmt.Errorf("generating %s: no randomness available", key)
	}
	if log != nil {
		log.Warn("no key configured, using a random one",
			zap.String("key", key),
			zap.String("env", envPrefix+"_"+strings.ToUpper(key)))
	}
	return b, nil
}
