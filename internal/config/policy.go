package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// DuplicatePrincipalFirst selects the first matching subscription in list order.
	DuplicatePrincipalFirst = "first"
	// DuplicatePrincipalError rejects a listing with more than one matching subscription.
	DuplicatePrincipalError = "error"
)

// Policy tunes how the subscription flows treat ambiguous data and partial failures.
type Policy struct {
	DuplicatePrincipal string
	Compensate         bool
}

func DefaultPolicy() Policy {
	return Policy{
		DuplicatePrincipal: DuplicatePrincipalFirst,
		Compensate:         false,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	v := viper.New()
	if cfg.PolicyConfigPath != "" {
		v.SetConfigFile(cfg.PolicyConfigPath)
	} else {
		v.SetConfigName("policy")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/qsubscription")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("QSUBSCRIPTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.duplicatePrincipal", defaults.DuplicatePrincipal)
	v.SetDefault("policy.compensate", defaults.Compensate)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfg.PolicyConfigPath != "" {
			return nil, fmt.Errorf("read policy config: %w", err)
		}
		fileLoaded = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	log.Info("policy loaded",
		zap.String("duplicate_principal", policy.DuplicatePrincipal),
		zap.Bool("compensate", policy.Compensate),
		zap.Bool("from_file", fileLoaded),
	)

	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("invalid policy ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded",
			zap.String("file", e.Name),
			zap.String("duplicate_principal", updated.DuplicatePrincipal),
			zap.Bool("compensate", updated.Compensate),
		)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	p, ok := h.current.Load().(Policy)
	if !ok {
		return DefaultPolicy()
	}
	return p
}

func decodePolicy(v *viper.Viper) (Policy, error) {
	// Read key by key so QSUBSCRIPTION_POLICY_* env overrides apply to nested keys.
	p := Policy{
		DuplicatePrincipal: strings.ToLower(strings.TrimSpace(v.GetString("policy.duplicatePrincipal"))),
		Compensate:         v.GetBool("policy.compensate"),
	}
	if p.DuplicatePrincipal == "" {
		p.DuplicatePrincipal = DuplicatePrincipalFirst
	}
	if err := validatePolicy(p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func validatePolicy(p Policy) error {
	switch p.DuplicatePrincipal {
	case DuplicatePrincipalFirst, DuplicatePrincipalError:
		return nil
	default:
		return fmt.Errorf("policy.duplicatePrincipal must be %q or %q, got %q",
			DuplicatePrincipalFirst, DuplicatePrincipalError, p.DuplicatePrincipal)
	}
}
