package preview

import "time"

const (
	DefaultOverrideTTL = 5 * time.Minute
	DefaultBaseTTL     = time.Hour
)

// TTLPolicy chooses how long a rendered preview stays valid. Renders that
// carry caller overrides are short-lived since the user is actively iterating
// on them; library-default renders change rarely and live longer.
type TTLPolicy struct {
	Override time.Duration
	Default  time.Duration
}

// DefaultTTLPolicy returns the policy used when none is configured.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{Override: DefaultOverrideTTL, Default: DefaultBaseTTL}
}

// TTL returns the ttl for a render, hasOverrides being true when the caller
// supplied any setting overrides.
func (p TTLPolicy) TTL(hasOverrides bool) time.Duration {
	if hasOverrides {
		if p.Override > 0 {
			return p.Override
		}
		return DefaultOverrideTTL
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultBaseTTL
}
