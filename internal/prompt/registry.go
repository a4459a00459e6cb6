package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"botcore/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// 内置 prompt 名称。
const (
	NameSOD      = "sod"
	NameIntraday = "intraday"
	NameVision   = "vision"
)

//go:embed defaults/*.txt
var defaultsFS embed.FS

// FileConfig 映射覆盖文件中的 prompts 段。
type FileConfig struct {
	Prompts map[string]string `yaml:"prompts"`
}

// Snapshot 是当前生效的 prompt 集合。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Source   string
	Prompts  map[string]string
}

// ChangeListener 在覆盖文件重载后触发。
type ChangeListener func(Snapshot)

// Registry 持有内置 prompt，并可从 YAML 覆盖文件热更新。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// Defaults 返回内置 prompt；sod/intraday 由通用交易框架加各自的补充段拼成。
func Defaults() map[string]string {
	trading := mustRead("trading.txt")
	return map[string]string{
		NameSOD:      trading + "\n\n" + mustRead("sod.txt"),
		NameIntraday: trading + "\n\n" + mustRead("intraday.txt"),
		NameVision:   mustRead("vision.txt"),
	}
}

func mustRead(name string) string {
	raw, err := defaultsFS.ReadFile("defaults/" + name)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt %s missing: %v", name, err))
	}
	return strings.TrimSpace(string(raw))
}

// NewRegistry 加载内置 prompt；path 非空时读取覆盖文件并监听变更。
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		r.snapshot = Snapshot{Version: 1, LoadedAt: time.Now(), Source: "embedded", Prompts: Defaults()}
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read prompt overrides failed: %w", err)
	}
	r.v = v
	if err := r.Reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.Reload(); err != nil {
			logger.Errorf("prompt reload failed (%s): %v", evt.Name, err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Get 返回指定名称的 prompt。
func (r *Registry) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	text, ok := r.snapshot.Prompts[normalizeName(name)]
	return text, ok && text != ""
}

// MustGet 与 Get 相同，但缺失时回落到内置版本。
func (r *Registry) MustGet(name string) string {
	if text, ok := r.Get(name); ok {
		return text
	}
	return Defaults()[normalizeName(name)]
}

// Snapshot 返回当前 prompt 集合的副本。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Names 按字母序列出可用的 prompt。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.snapshot.Prompts))
	for name := range r.snapshot.Prompts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribe 注册监听器。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Reload 重新读取覆盖文件；未覆盖的名称保持内置版本。
func (r *Registry) Reload() error {
	prompts := Defaults()
	if r.path != "" {
		cfg, err := readOverrideFile(r.path)
		if err != nil {
			return err
		}
		for name, text := range cfg.Prompts {
			name = normalizeName(name)
			text = strings.TrimSpace(text)
			if name == "" || text == "" {
				continue
			}
			prompts[name] = text
		}
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Source:   r.path,
		Prompts:  prompts,
	}
	r.mu.Unlock()
	logger.Infof("Prompt registry loaded %d prompts from %s", len(prompts), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("prompt listener")
			cb(snap)
		}(fn)
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := src
	dst.Prompts = make(map[string]string, len(src.Prompts))
	for k, v := range src.Prompts {
		dst.Prompts[k] = v
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func readOverrideFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read prompt overrides failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse prompt overrides failed: %w", err)
	}
	return cfg, nil
}
