package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/cmsindex/internal/logging"
	"github.com/Aman-CERP/cmsindex/internal/query"
	"github.com/Aman-CERP/cmsindex/internal/registry"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/validator"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// ProjectFileNames are the project config files, in precedence order.
var ProjectFileNames = []string{"cmsindex.yaml", "cmsindex.yml"}

// Config is the complete cmsindex configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Indexes     []IndexConfig     `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	ContentTree ContentTreeConfig `yaml:"content_tree" json:"content_tree"`
	Writer      WriterConfig      `yaml:"writer" json:"writer"`
	Log         LogConfig         `yaml:"log" json:"log"`
}

// StorageConfig locates the index directories.
type StorageConfig struct {
	// Root holds <name>.bleve per index. Relative roots resolve against the project dir.
	Root string `yaml:"root" json:"root"`
	// Memory keeps every index in memory; nothing touches disk.
	Memory bool `yaml:"memory" json:"memory"`
	// ForceUnlock clears lock markers at startup even when their owner is alive.
	ForceUnlock bool `yaml:"force_unlock" json:"force_unlock"`
}

// IndexConfig overrides or adds one index. An entry whose name matches a
// default index changes only the fields it sets.
type IndexConfig struct {
	Name           string   `yaml:"name" json:"name"`
	Analyzer       string   `yaml:"analyzer,omitempty" json:"analyzer,omitempty"`
	FilenameFields []string `yaml:"filename_fields,omitempty" json:"filename_fields,omitempty"`
	Categories     []string `yaml:"categories,omitempty" json:"categories,omitempty"`
	// Rules is "content" or "member".
	Rules            string   `yaml:"rules,omitempty" json:"rules,omitempty"`
	PublishedOnly    *bool    `yaml:"published_only,omitempty" json:"published_only,omitempty"`
	ExcludeProtected *bool    `yaml:"exclude_protected,omitempty" json:"exclude_protected,omitempty"`
	ParentID         string   `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	IncludeItemTypes []string `yaml:"include_item_types,omitempty" json:"include_item_types,omitempty"`
	ExcludeItemTypes []string `yaml:"exclude_item_types,omitempty" json:"exclude_item_types,omitempty"`
	IncludeFields    []string `yaml:"include_fields,omitempty" json:"include_fields,omitempty"`
	ExcludeFields    []string `yaml:"exclude_fields,omitempty" json:"exclude_fields,omitempty"`
}

// SearchConfig configures the query builder.
type SearchConfig struct {
	// Fields per entity type (Document, Media, Member).
	Fields   map[string]query.Fields `yaml:"fields,omitempty" json:"fields,omitempty"`
	Cultures []string                `yaml:"cultures,omitempty" json:"cultures,omitempty"`
	PageSize int                     `yaml:"page_size" json:"page_size"`
	// PathCacheSize bounds the start-node path cache.
	PathCacheSize int `yaml:"path_cache_size" json:"path_cache_size"`
	// Targets maps entity types to the index searched for them.
	Targets map[string]string `yaml:"targets,omitempty" json:"targets,omitempty"`
}

// ContentTreeConfig locates the content tree database.
type ContentTreeConfig struct {
	// Path of the sqlite file. Empty means <storage.root>/contenttree.db,
	// or in memory when storage.memory is set.
	Path string `yaml:"path" json:"path"`
}

// WriterConfig tunes the per-index writer queues.
type WriterConfig struct {
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a configuration with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Root: filepath.Join(".cmsindex", "indexes"),
		},
		Search: SearchConfig{
			PageSize:      query.DefaultPageSize,
			PathCacheSize: query.DefaultPathCacheSize,
		},
		Writer: WriterConfig{
			QueueSize: 64,
		},
		Log: LogConfig{
			Level:     "info",
			File:      logging.DefaultLogPath(),
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user configuration path,
// honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cmsindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "cmsindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "cmsindex", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig returns nil, nil when no user config exists.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Load builds the configuration for the project in dir.
// Precedence: defaults < user config < project config < CMSINDEX_* env.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ProjectConfigPath returns the existing project config file in dir, or "".
func ProjectConfigPath(dir string) string {
	for _, name := range ProjectFileNames {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		return nil
	}

	var parsed Config
	if err := readYAML(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func readYAML(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith copies the non-zero values of other over c. Index entries merge by name.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Storage.Root != "" {
		c.Storage.Root = other.Storage.Root
	}
	if other.Storage.Memory {
		c.Storage.Memory = true
	}
	if other.Storage.ForceUnlock {
		c.Storage.ForceUnlock = true
	}

	for _, idx := range other.Indexes {
		c.Indexes = mergeIndex(c.Indexes, idx)
	}

	if len(other.Search.Fields) > 0 {
		if c.Search.Fields == nil {
			c.Search.Fields = make(map[string]query.Fields)
		}
		for et, f := range other.Search.Fields {
			c.Search.Fields[et] = f
		}
	}
	if len(other.Search.Cultures) > 0 {
		c.Search.Cultures = other.Search.Cultures
	}
	if other.Search.PageSize != 0 {
		c.Search.PageSize = other.Search.PageSize
	}
	if other.Search.PathCacheSize != 0 {
		c.Search.PathCacheSize = other.Search.PathCacheSize
	}
	if len(other.Search.Targets) > 0 {
		if c.Search.Targets == nil {
			c.Search.Targets = make(map[string]string)
		}
		for et, name := range other.Search.Targets {
			c.Search.Targets[et] = name
		}
	}

	if other.ContentTree.Path != "" {
		c.ContentTree.Path = other.ContentTree.Path
	}
	if other.Writer.QueueSize != 0 {
		c.Writer.QueueSize = other.Writer.QueueSize
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxFiles != 0 {
		c.Log.MaxFiles = other.Log.MaxFiles
	}
}

func mergeIndex(list []IndexConfig, in IndexConfig) []IndexConfig {
	for i := range list {
		if list[i].Name != in.Name {
			continue
		}
		cur := &list[i]
		if in.Analyzer != "" {
			cur.Analyzer = in.Analyzer
		}
		if in.FilenameFields != nil {
			cur.FilenameFields = in.FilenameFields
		}
		if in.Categories != nil {
			cur.Categories = in.Categories
		}
		if in.Rules != "" {
			cur.Rules = in.Rules
		}
		if in.PublishedOnly != nil {
			cur.PublishedOnly = in.PublishedOnly
		}
		if in.ExcludeProtected != nil {
			cur.ExcludeProtected = in.ExcludeProtected
		}
		if in.ParentID != "" {
			cur.ParentID = in.ParentID
		}
		if in.IncludeItemTypes != nil {
			cur.IncludeItemTypes = in.IncludeItemTypes
		}
		if in.ExcludeItemTypes != nil {
			cur.ExcludeItemTypes = in.ExcludeItemTypes
		}
		if in.IncludeFields != nil {
			cur.IncludeFields = in.IncludeFields
		}
		if in.ExcludeFields != nil {
			cur.ExcludeFields = in.ExcludeFields
		}
		return list
	}
	return append(list, in)
}

// applyEnvOverrides applies CMSINDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CMSINDEX_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("CMSINDEX_MEMORY"); v != "" {
		c.Storage.Memory = parseBool(v)
	}
	if v := os.Getenv("CMSINDEX_FORCE_UNLOCK"); v != "" {
		c.Storage.ForceUnlock = parseBool(v)
	}
	if v := os.Getenv("CMSINDEX_CULTURES"); v != "" {
		c.Search.Cultures = splitList(v)
	}
	if v := os.Getenv("CMSINDEX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.PageSize = n
		}
	}
	if v := os.Getenv("CMSINDEX_CONTENT_TREE"); v != "" {
		c.ContentTree.Path = v
	}
	if v := os.Getenv("CMSINDEX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Writer.QueueSize = n
		}
	}
	if v := os.Getenv("CMSINDEX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CMSINDEX_LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

// resolvePaths anchors relative storage and tree paths at dir.
func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	if c.Storage.Root != "" && !filepath.IsAbs(c.Storage.Root) {
		c.Storage.Root = filepath.Join(dir, c.Storage.Root)
	}
	if c.ContentTree.Path != "" && c.ContentTree.Path != ":memory:" && !filepath.IsAbs(c.ContentTree.Path) {
		c.ContentTree.Path = filepath.Join(dir, c.ContentTree.Path)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if !c.Storage.Memory && c.Storage.Root == "" {
		return fmt.Errorf("storage.root must be set unless storage.memory is true")
	}

	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be positive, got %d", c.Search.PageSize)
	}
	if c.Search.PathCacheSize < 0 {
		return fmt.Errorf("search.path_cache_size must be non-negative, got %d", c.Search.PathCacheSize)
	}
	if c.Writer.QueueSize <= 0 {
		return fmt.Errorf("writer.queue_size must be positive, got %d", c.Writer.QueueSize)
	}

	for et := range c.Search.Fields {
		if _, err := valueset.ParseEntityType(et); err != nil {
			return fmt.Errorf("search.fields: %w", err)
		}
	}

	if _, err := c.Descriptors(); err != nil {
		return err
	}
	if _, err := c.SearchTargets(); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error': %w", err)
	}

	return nil
}

// Descriptors returns the default indexes with the configured overrides applied,
// plus any additional configured indexes.
func (c *Config) Descriptors() ([]storage.Descriptor, error) {
	descs := registry.DefaultDescriptors(c.Storage.Root, c.Storage.Memory)
	pos := make(map[string]int, len(descs))
	for i, d := range descs {
		pos[d.Name] = i
	}

	for _, ic := range c.Indexes {
		if strings.TrimSpace(ic.Name) == "" {
			return nil, fmt.Errorf("indexes: every index needs a name")
		}
		i, ok := pos[ic.Name]
		if !ok {
			descs = append(descs, storage.Descriptor{
				Name:     ic.Name,
				Root:     c.Storage.Root,
				InMemory: c.Storage.Memory,
			})
			i = len(descs) - 1
			pos[ic.Name] = i
		}
		if err := ic.apply(&descs[i]); err != nil {
			return nil, fmt.Errorf("indexes.%s: %w", ic.Name, err)
		}
	}
	return descs, nil
}

func (ic IndexConfig) apply(d *storage.Descriptor) error {
	if ic.Analyzer != "" {
		if err := storage.ValidateAnalyzer(ic.Analyzer); err != nil {
			return err
		}
		d.Analyzer = ic.Analyzer
	}
	if ic.FilenameFields != nil {
		d.FilenameFields = ic.FilenameFields
	}
	if ic.Categories != nil {
		cats := make([]valueset.Category, 0, len(ic.Categories))
		for _, s := range ic.Categories {
			cat := valueset.Category(strings.ToLower(strings.TrimSpace(s)))
			if !cat.Valid() {
				return fmt.Errorf("unknown category %q", s)
			}
			cats = append(cats, cat)
		}
		d.Categories = cats
		d.Policy.Categories = cats
	}

	switch strings.ToLower(ic.Rules) {
	case "":
	case "content":
		d.Policy.RuleSet = validator.RulesContent
	case "member":
		d.Policy.RuleSet = validator.RulesMember
	default:
		return fmt.Errorf("rules must be 'content' or 'member', got %s", ic.Rules)
	}

	if ic.PublishedOnly != nil {
		d.Policy.PublishedOnly = *ic.PublishedOnly
	}
	if ic.ExcludeProtected != nil {
		d.Policy.ExcludeProtected = *ic.ExcludeProtected
	}
	if ic.ParentID != "" {
		d.Policy.ParentID = ic.ParentID
	}
	if ic.IncludeItemTypes != nil {
		d.Policy.IncludeItemTypes = ic.IncludeItemTypes
	}
	if ic.ExcludeItemTypes != nil {
		d.Policy.ExcludeItemTypes = ic.ExcludeItemTypes
	}
	if ic.IncludeFields != nil {
		d.Policy.IncludeFields = ic.IncludeFields
	}
	if ic.ExcludeFields != nil {
		d.Policy.ExcludeFields = ic.ExcludeFields
	}

	return validator.ValidatePatterns(
		d.Policy.IncludeItemTypes, d.Policy.ExcludeItemTypes,
		d.Policy.IncludeFields, d.Policy.ExcludeFields,
	)
}

// SearchTargets returns the entity type to index mapping.
func (c *Config) SearchTargets() (map[valueset.EntityType]string, error) {
	targets := registry.DefaultSearchTargets()
	if len(c.Search.Targets) == 0 {
		return targets, nil
	}

	known := make(map[string]bool)
	descs := registry.DefaultDescriptors("", true)
	for _, d := range descs {
		known[d.Name] = true
	}
	for _, ic := range c.Indexes {
		known[ic.Name] = true
	}

	keys := make([]string, 0, len(c.Search.Targets))
	for k := range c.Search.Targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		et, err := valueset.ParseEntityType(k)
		if err != nil {
			return nil, fmt.Errorf("search.targets: %w", err)
		}
		name := c.Search.Targets[k]
		if !known[name] {
			return nil, fmt.Errorf("search.targets.%s: unknown index %q", k, name)
		}
		targets[et] = name
	}
	return targets, nil
}

// BuilderConfig returns the query builder configuration. Configured fields
// replace the defaults per entity type.
func (c *Config) BuilderConfig() query.BuilderConfig {
	fields := query.DefaultFields()
	for k, f := range c.Search.Fields {
		if et, err := valueset.ParseEntityType(k); err == nil {
			fields[et] = f
		}
	}
	return query.BuilderConfig{
		Fields:        fields,
		Cultures:      c.Search.Cultures,
		PathCacheSize: c.Search.PathCacheSize,
	}
}

// ContentTreePath returns the sqlite path of the content tree, "" for in memory.
func (c *Config) ContentTreePath() string {
	if c.ContentTree.Path == ":memory:" {
		return ""
	}
	if c.ContentTree.Path != "" {
		return c.ContentTree.Path
	}
	if c.Storage.Memory {
		return ""
	}
	return filepath.Join(c.Storage.Root, "contenttree.db")
}

// LoggingConfig returns the logging configuration.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:         c.Log.Level,
		FilePath:      c.Log.File,
		MaxSizeMB:     c.Log.MaxSizeMB,
		MaxFiles:      c.Log.MaxFiles,
		WriteToStderr: false,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
