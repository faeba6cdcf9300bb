package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/anicolao/dikuclient/internal/aliases"
	"github.com/anicolao/dikuclient/internal/contextqueue"
	"github.com/anicolao/dikuclient/internal/tabs"
	"github.com/anicolao/dikuclient/internal/triggers"
)

// TabDocument is the persisted shape of one user tab: the same fields
// as tabs.Tab, reconstructed through tabs.Router.AddTab on load so its
// filters recompile.
type TabDocument struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Filters  []tabs.TabFilter `json:"filters,omitempty"`
	Capture  tabs.CaptureMode `json:"capture"`
	MaxLines int              `json:"max_lines"`
}

// Document is the single JSON document the core persists: accounts,
// the automation layer's rule sets, and USER-sourced variables. Each
// section mirrors the shape its owning package already persists on its
// own (triggers.Manager, aliases.Manager, contextqueue.Queue's rules,
// tabs.Router's user tabs), unified here per §6.
type Document struct {
	Accounts       []Account `json:"accounts,omitempty"`
	DefaultAccount string    `json:"default_account,omitempty"`
	Encoding       string    `json:"encoding,omitempty"`

	Triggers     []*triggers.Trigger    `json:"triggers,omitempty"`
	Aliases      []*aliases.Alias       `json:"aliases,omitempty"`
	Tabs         []TabDocument          `json:"tabs,omitempty"`
	ContextRules []*contextqueue.Rule   `json:"context_rules,omitempty"`
	Variables    map[string]string      `json:"variables,omitempty"`

	path string
}

// GetDocumentPath returns the path to the unified config document,
// honoring DIKUCLIENT_CONFIG_DIR the same way every other persisted
// file in the core does.
func GetDocumentPath() (string, error) {
	configDir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

func configDir() (string, error) {
	if dir := os.Getenv("DIKUCLIENT_CONFIG_DIR"); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("config: create config dir: %w", err)
		}
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".config", "dikuclient")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("config: create config dir: %w", err)
	}
	return dir, nil
}

// LoadDocument loads the unified document from the default path.
func LoadDocument() (*Document, error) {
	path, err := GetDocumentPath()
	if err != nil {
		return nil, err
	}
	return LoadDocumentFromPath(path)
}

// LoadDocumentFromPath loads the unified document from an explicit
// path, useful for tests. A missing file yields an empty Document, not
// an error. Unknown keys are silently ignored by encoding/json.
func LoadDocumentFromPath(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{path: path}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	doc.path = path

	validTriggers := doc.Triggers[:0]
	for _, t := range doc.Triggers {
		if err := t.Recompile(); err != nil {
			log.Printf("config: skipping trigger %s: invalid pattern: %v", t.ID, err)
			continue
		}
		validTriggers = append(validTriggers, t)
	}
	doc.Triggers = validTriggers

	validAliases := doc.Aliases[:0]
	for _, a := range doc.Aliases {
		if err := a.Recompile(); err != nil {
			log.Printf("config: skipping alias %s: invalid pattern: %v", a.ID, err)
			continue
		}
		validAliases = append(validAliases, a)
	}
	doc.Aliases = validAliases

	return &doc, nil
}

// Save writes the document back to the path it was loaded from (or the
// default path, if constructed fresh).
func (d *Document) Save() error {
	path := d.path
	if path == "" {
		var err error
		path, err = GetDocumentPath()
		if err != nil {
			return err
		}
	}
	return d.SaveToPath(path)
}

// SaveToPath writes the document to an explicit path, useful for tests.
func (d *Document) SaveToPath(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal document: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	d.path = path
	return nil
}

// TriggerManager rebuilds a triggers.Manager seeded with the document's
// triggers, preserving their persisted order as insertion order.
func (d *Document) TriggerManager() *triggers.Manager {
	m := triggers.NewManager()
	for _, t := range d.Triggers {
		m.Adopt(t)
	}
	return m
}

// AliasManager rebuilds an aliases.Manager seeded with the document's
// aliases, preserving their persisted order as insertion order.
func (d *Document) AliasManager() *aliases.Manager {
	m := aliases.NewManager()
	for _, a := range d.Aliases {
		m.Adopt(a)
	}
	return m
}

// TabRouter rebuilds a tabs.Router seeded with the document's tabs.
// maxLines backstops any tab whose persisted MaxLines is zero.
func (d *Document) TabRouter(maxLines int) (*tabs.Router, error) {
	r := tabs.NewRouter(maxLines)
	for _, t := range d.Tabs {
		lines := t.MaxLines
		if lines <= 0 {
			lines = maxLines
		}
		if _, err := r.AddTab(t.ID, t.Name, t.Filters, t.Capture, lines); err != nil {
			return nil, fmt.Errorf("config: rebuild tab %s: %w", t.ID, err)
		}
	}
	return r, nil
}

// ContextQueue rebuilds a contextqueue.Queue seeded with the document's
// rules.
func (d *Document) ContextQueue(maxSize int) (*contextqueue.Queue, error) {
	q := contextqueue.NewQueue(maxSize)
	for _, r := range d.ContextRules {
		if err := q.AddRule(r); err != nil {
			return nil, fmt.Errorf("config: rebuild rule %s: %w", r.ID, err)
		}
	}
	return q, nil
}

// AddAccount adds or, by name, replaces an account and persists the
// document.
func (d *Document) AddAccount(account Account) error {
	for i, existing := range d.Accounts {
		if existing.Name == account.Name {
			d.Accounts[i] = account
			return d.Save()
		}
	}
	d.Accounts = append(d.Accounts, account)
	return d.Save()
}

// GetAccount retrieves an account by name.
func (d *Document) GetAccount(name string) (*Account, error) {
	for _, account := range d.Accounts {
		if account.Name == name {
			return &account, nil
		}
	}
	return nil, fmt.Errorf("config: get account %q: %w", name, ErrAccountNotFound)
}

// DeleteAccount removes an account by name and persists the document.
func (d *Document) DeleteAccount(name string) error {
	for i, account := range d.Accounts {
		if account.Name == name {
			d.Accounts = append(d.Accounts[:i], d.Accounts[i+1:]...)
			return d.Save()
		}
	}
	return fmt.Errorf("config: delete account %q: %w", name, ErrAccountNotFound)
}

// ListAccounts returns every saved account.
func (d *Document) ListAccounts() []Account {
	return d.Accounts
}

// SetTabs captures a router's user tabs into the document, ready for
// Save.
func (d *Document) SetTabs(r *tabs.Router) {
	d.Tabs = d.Tabs[:0]
	for _, t := range r.UserTabs() {
		d.Tabs = append(d.Tabs, TabDocument{
			ID:       t.ID,
			Name:     t.Name,
			Filters:  t.Filters,
			Capture:  t.Capture,
			MaxLines: t.MaxLines,
		})
	}
}
