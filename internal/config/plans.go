package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gosimple/slug"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanSpec is one entry of the plan catalog file.
type PlanSpec struct {
	ID                   string `mapstructure:"id"`
	Name                 string `mapstructure:"name"`
	Price                int64  `mapstructure:"price"`
	Currency             string `mapstructure:"currency"`
	StorageLimitMB       int64  `mapstructure:"storageLimitMB"`
	MaxUploadSizeMB      int64  `mapstructure:"maxUploadSizeMB"`
	TransformationsLimit int64  `mapstructure:"transformationsLimit"`
	TeamMembers          int    `mapstructure:"teamMembers"`
}

// Identifier returns the configured id, or a slug of the name when none is set.
func (p PlanSpec) Identifier() string {
	if id := strings.ToLower(strings.TrimSpace(p.ID)); id != "" {
		return id
	}
	return slug.Make(p.Name)
}

// FreePlanID identifies the zero-price floor plan every user falls back to.
const FreePlanID = "free"

type PlanCatalog struct {
	Plans []PlanSpec `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []PlanSpec{
			{ID: "free", Name: "Free", Price: 0, StorageLimitMB: 500, MaxUploadSizeMB: 10, TransformationsLimit: 25, TeamMembers: 1},
			{ID: "pro", Name: "Pro", Price: 29900, StorageLimitMB: 10240, MaxUploadSizeMB: 100, TransformationsLimit: 1000, TeamMembers: 5},
			{ID: "business", Name: "Business", Price: 99900, StorageLimitMB: 102400, MaxUploadSizeMB: 500, TransformationsLimit: 10000, TeamMembers: -1},
		},
	}
}

// PlanCatalogHolder keeps the latest valid catalog and notifies subscribers on reload.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog

	mu        sync.Mutex
	listeners []func(PlanCatalog)
}

func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/mediavault/config")
	v.AddConfigPath("/etc/mediavault")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEDIAVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg := DefaultPlanCatalog()
	if fileFound {
		var loaded PlanCatalog
		if err := v.Unmarshal(&loaded); err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := ValidatePlanCatalog(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPlanCatalogHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	log = log.Named("config.plans")
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("plan catalog reload failed", zap.Error(err))
			return
		}
		if err := ValidatePlanCatalog(updated); err != nil {
			log.Warn("invalid plan catalog ignored", zap.Error(err))
			return
		}
		holder.store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name), zap.Int("plans", len(updated.Plans)))
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog, used by tests and when no file exists.
func NewStaticPlanCatalogHolder(cfg PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

// OnChange registers fn to run after every successful reload.
func (h *PlanCatalogHolder) OnChange(fn func(PlanCatalog)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func (h *PlanCatalogHolder) store(cfg PlanCatalog) {
	h.current.Store(cfg)

	h.mu.Lock()
	listeners := append([]func(PlanCatalog){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func ValidatePlanCatalog(cfg PlanCatalog) error {
	if len(cfg.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	hasFree := false
	seen := make(map[string]struct{}, len(cfg.Plans))
	for i, plan := range cfg.Plans {
		if strings.TrimSpace(plan.Name) == "" {
			return fmt.Errorf("plans[%d].name is required", i)
		}
		id := plan.Identifier()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("plans[%d] duplicates id %q", i, id)
		}
		seen[id] = struct{}{}
		if plan.Price < 0 {
			return fmt.Errorf("plans[%d].price must not be negative", i)
		}
		if plan.MaxUploadSizeMB == 0 || plan.StorageLimitMB == 0 {
			return fmt.Errorf("plans[%d] storage limits must be set", i)
		}
		if id == FreePlanID {
			if plan.Price != 0 {
				return errors.New("free plan must have a zero price")
			}
			hasFree = true
		}
	}
	if !hasFree {
		return errors.New("plan catalog must define the free plan")
	}
	return nil
}
