package quota

import (
	"encoding/json"
	"time"

	"jot/log"
	"jot/store"
)

const dateLayout = "2006-01-02"

// Decision is the answer to a start attempt.
type Decision struct {
	Allowed   bool
	Remaining int // Unlimited for pro
}

type record struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Tracker persists the daily usage count for the free tier. Storage failures
// never block recording: an unreadable record counts as empty and a failed
// write is dropped.
type Tracker struct {
	kv  store.KV
	now func() time.Time
}

func NewTracker(kv store.KV) *Tracker {
	return &Tracker{kv: kv, now: time.Now}
}

// WithClock replaces the wall clock, used by tests for day rollover.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// CanStart reports whether a new recording may begin under p.
func (t *Tracker) CanStart(p Profile) Decision {
	if p.Pro || p.DailyLimit == Unlimited {
		return Decision{Allowed: true, Remaining: Unlimited}
	}
	count := t.load().Count
	remaining := p.DailyLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count < p.DailyLimit, Remaining: remaining}
}

// RecordUse charges one recording against today's allowance. It never
// touches storage under pro.
func (t *Tracker) RecordUse(p Profile) {
	if p.Pro {
		return
	}
	rec := t.load()
	rec.Count++
	data, err := json.Marshal(rec)
	if err != nil {
		log.Warnf("quota encode failed: %v", err)
		return
	}
	if err := t.kv.Set(QuotaKey, string(data)); err != nil {
		log.Warnf("quota write failed: %v", err)
		return
	}
	log.QuotaUse(rec.Count, p.DailyLimit)
}

// load returns today's record, resetting a record from another day.
func (t *Tracker) load() record {
	today := t.now().Format(dateLayout)
	empty := record{Date: today}

	raw, ok, err := t.kv.Get(QuotaKey)
	if err != nil {
		log.Warnf("quota read failed: %v", err)
		return empty
	}
	if !ok {
		return empty
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Warnf("quota record corrupt, resetting: %v", err)
		return empty
	}
	if rec.Date != today || rec.Count < 0 {
		return empty
	}
	return rec
}
