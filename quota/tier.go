// Package quota evaluates the free-tier daily recording allowance and the
// tier profile that controls time limits.
package quota

import (
	"strconv"

	"jot/log"
	"jot/store"
)

// Unlimited marks an unbounded daily limit or remaining count.
const Unlimited = -1

const (
	TierKey  = "jot.pro"
	QuotaKey = "jot.quota"

	DefaultFreeTimeLimit  = 120
	DefaultProTimeLimit   = 600
	DefaultFreeDailyLimit = 3
)

// Profile is the capability set of a tier. It is read once per session.
type Profile struct {
	Pro        bool
	TimeLimit  int // seconds, always > 0
	DailyLimit int // Unlimited for pro
}

// Limits are the configured per-tier limits. Non-positive values fall back to
// the defaults.
type Limits struct {
	FreeTimeLimit  int
	ProTimeLimit   int
	FreeDailyLimit int
}

func (l Limits) normalized() Limits {
	if l.FreeTimeLimit <= 0 {
		l.FreeTimeLimit = DefaultFreeTimeLimit
	}
	if l.ProTimeLimit <= 0 {
		l.ProTimeLimit = DefaultProTimeLimit
	}
	if l.FreeDailyLimit <= 0 {
		l.FreeDailyLimit = DefaultFreeDailyLimit
	}
	return l
}

// ProfileFor builds the profile for a tier.
func ProfileFor(pro bool, l Limits) Profile {
	l = l.normalized()
	if pro {
		return Profile{Pro: true, TimeLimit: l.ProTimeLimit, DailyLimit: Unlimited}
	}
	return Profile{TimeLimit: l.FreeTimeLimit, DailyLimit: l.FreeDailyLimit}
}

// LoadProfile reads the persisted tier flag. A missing, unreadable or
// unparsable flag means free tier.
func LoadProfile(kv store.KV, l Limits) Profile {
	return ProfileFor(IsPro(kv), l)
}

func IsPro(kv store.KV) bool {
	v, ok, err := kv.Get(TierKey)
	if err != nil {
		log.Warnf("tier flag read failed: %v", err)
		return false
	}
	if !ok {
		return false
	}
	pro, err := strconv.ParseBool(v)
	if err != nil {
		log.Warnf("tier flag %q unparsable, using free tier", v)
		return false
	}
	return pro
}

// SetPro persists the tier flag.
func SetPro(kv store.KV, pro bool) error {
	return kv.Set(TierKey, strconv.FormatBool(pro))
}
