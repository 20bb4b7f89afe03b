// internal/registry/registry.go

// Package registry knows the SaaS applications guidecap can document:
// their login pages, their domains, and where their credentials come from.
package registry

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
	"github.com/xkilldash9x/guidecap-cli/pkg/auth"
)

// App describes one known application.
type App struct {
	Name        string
	DisplayName string
	BaseURL     string
	LoginURL    string
	Domains     []string
}

var knownApps = []App{
	{
		Name:        "notion",
		DisplayName: "Notion",
		BaseURL:     "https://www.notion.so",
		LoginURL:    "https://www.notion.so/login",
		Domains:     []string{"notion.so", "notion.site"},
	},
	{
		Name:        "linear",
		DisplayName: "Linear",
		BaseURL:     "https://linear.app",
		LoginURL:    "https://linear.app/login",
		Domains:     []string{"linear.app"},
	},
	{
		Name:        "github",
		DisplayName: "GitHub",
		BaseURL:     "https://github.com",
		LoginURL:    "https://github.com/login",
		Domains:     []string{"github.com"},
	},
	{
		Name:        "jira",
		DisplayName: "Jira",
		BaseURL:     "https://www.atlassian.com/software/jira",
		LoginURL:    "https://id.atlassian.com/login",
		Domains:     []string{"atlassian.net", "atlassian.com"},
	},
	{
		Name:        "asana",
		DisplayName: "Asana",
		BaseURL:     "https://app.asana.com",
		LoginURL:    "https://app.asana.com/-/login",
		Domains:     []string{"asana.com"},
	},
	{
		Name:        "trello",
		DisplayName: "Trello",
		BaseURL:     "https://trello.com",
		LoginURL:    "https://trello.com/login",
		Domains:     []string{"trello.com"},
	},
	{
		Name:        "slack",
		DisplayName: "Slack",
		BaseURL:     "https://slack.com",
		LoginURL:    "https://slack.com/signin",
		Domains:     []string{"slack.com"},
	},
	{
		Name:        "clickup",
		DisplayName: "ClickUp",
		BaseURL:     "https://app.clickup.com",
		LoginURL:    "https://app.clickup.com/login",
		Domains:     []string{"clickup.com"},
	},
}

// Registry resolves apps and their credentials.
type Registry struct {
	apps   []App
	logger *zap.Logger
}

// New loads the optional env file and returns the registry. A missing env
// file is not an error; credentials may already be in the environment.
func New(cfg config.RegistryConfig, logger *zap.Logger) *Registry {
	log := logger.Named("registry")
	if cfg.EnvFile != "" {
		path, err := homedir.Expand(cfg.EnvFile)
		if err == nil {
			err = godotenv.Load(path)
		}
		if err != nil {
			log.Debug("No env file loaded.", zap.String("path", cfg.EnvFile), zap.Error(err))
		}
	}
	return &Registry{apps: knownApps, logger: log}
}

// Apps lists the known applications.
func (r *Registry) Apps() []App {
	out := make([]App, len(r.apps))
	copy(out, r.apps)
	return out
}

// Lookup finds an app by name, case-insensitively.
func (r *Registry) Lookup(name string) (App, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, app := range r.apps {
		if app.Name == name {
			return app, true
		}
	}
	return App{}, false
}

// DetectApp matches a URL against the known app domains. Subdomains match,
// so team.atlassian.net resolves to jira.
func (r *Registry) DetectApp(rawURL string) (App, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return App{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, app := range r.apps {
		for _, domain := range app.Domains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return app, true
			}
		}
	}
	return App{}, false
}

// DetectFromText scans free-form task text for an app name, so "create a
// page in Notion" resolves without an explicit flag. Names match on word
// boundaries; "notional savings" does not match notion.
func (r *Registry) DetectFromText(text string) (App, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !('a' <= c && c <= 'z' || '0' <= c && c <= '9')
	})
	for _, app := range r.apps {
		display := strings.ToLower(app.DisplayName)
		for _, w := range words {
			if w == app.Name || w == display {
				return app, true
			}
		}
	}
	return App{}, false
}

// Credentials reads an app's login credentials from the environment, e.g.
// NOTION_EMAIL and NOTION_PASSWORD, falling back to GUIDECAP_EMAIL and
// GUIDECAP_PASSWORD.
func (r *Registry) Credentials(app App) (auth.Credentials, error) {
	prefix := strings.ToUpper(app.Name)
	creds := auth.Credentials{
		Identifier: firstEnv(prefix+"_EMAIL", "GUIDECAP_EMAIL"),
		Secret:     firstEnv(prefix+"_PASSWORD", "GUIDECAP_PASSWORD"),
	}
	if creds.Identifier == "" || creds.Secret == "" {
		return auth.Credentials{}, fmt.Errorf(
			"registry: no credentials for %s, set %s_EMAIL and %s_PASSWORD", app.DisplayName, prefix, prefix)
	}
	return creds, nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
