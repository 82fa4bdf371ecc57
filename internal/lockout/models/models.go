package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// SubjectRef is a tagged polymorphic reference to a lockable entity.
// Kind names the entity family (e.g. "user", "admin"); ID is the row ID.
type SubjectRef struct {
	Kind string
	ID   uuid.UUID
}

func (r SubjectRef) String() string {
	return r.Kind + ":" + r.ID.String()
}

// IsZero reports whether the reference points at nothing.
func (r SubjectRef) IsZero() bool {
	return r.Kind == "" && r.ID == uuid.Nil
}

// Subject is the capability contract every lockable entity type implements.
// The engine operates on this interface instead of probing concrete types.
type Subject interface {
	// Ref returns the polymorphic reference lock records attach to.
	Ref() SubjectRef
	// LockIdentifier returns the value of the configured login field
	// (e.g. the user's email) used to correlate attempt counters.
	LockIdentifier() string
}

// BasicSubject is the minimal Subject implementation used by resolvers.
type BasicSubject struct {
	SubjectKind string
	SubjectID   uuid.UUID
	Identifier  string
}

func (s BasicSubject) Ref() SubjectRef {
	return SubjectRef{Kind: s.SubjectKind, ID: s.SubjectID}
}

func (s BasicSubject) LockIdentifier() string {
	return s.Identifier
}

// LockRecord is one row of lock lifecycle history for a subject.
// History is retained; records are only removed by retention pruning.
type LockRecord struct {
	ID         uuid.UUID
	Subject    SubjectRef
	LockedAt   time.Time
	UnlockedAt *time.Time
	ExpiresAt  *time.Time
	Reason     *string
	Meta       map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsActive reports whether the lock is in force at the given instant.
// Active = not unlocked AND (no expiry set OR expiry in the future).
// Expiry passing never populates UnlockedAt; status reads must use this
// predicate, never UnlockedAt alone.
func (l *LockRecord) IsActive(now time.Time) bool {
	if l.UnlockedAt != nil {
		return false
	}
	if l.ExpiresAt == nil {
		return true
	}
	return l.ExpiresAt.After(now)
}

// MergeMeta merges the given map into the record's meta, creating it if needed.
func (l *LockRecord) MergeMeta(meta map[string]any) {
	if len(meta) == 0 {
		return
	}
	if l.Meta == nil {
		l.Meta = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		l.Meta[k] = v
	}
}

// LockOptions carries the optional attributes of a new lock record.
type LockOptions struct {
	LockedAt  *time.Time
	ExpiresAt *time.Time
	Reason    *string
	Meta      map[string]any
}

// Unlock triggers, recorded in metrics to tell link-holder self-service
// releases apart from programmatic ones.
const (
	UnlockTriggerAPI        = "api"
	UnlockTriggerSignedLink = "signed_link"
)

// UnlockOptions carries the optional attributes applied while unlocking.
// Actor, when set, is merged into the lock's meta under the "actor" key.
// Trigger defaults to UnlockTriggerAPI when empty.
type UnlockOptions struct {
	Reason  *string
	Meta    map[string]any
	Actor   string
	Trigger string
	Context RequestContext
}

// AttemptLog is one append-only row per recorded failed attempt,
// including attempts that do not cross the threshold.
type AttemptLog struct {
	ID          uuid.UUID
	Identifier  string
	Subject     *SubjectRef
	IPAddress   string
	UserAgent   string
	AttemptedAt time.Time
}

// RequestContext is the request metadata attached to attempt logs and events.
type RequestContext struct {
	IP          string
	UserAgent   string
	Fingerprint string
}

// RequestContextFromHTTP extracts lockout-relevant metadata from a request.
func RequestContextFromHTTP(r *http.Request) RequestContext {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	ua := r.UserAgent()
	return RequestContext{
		IP:          ip,
		UserAgent:   ua,
		Fingerprint: Fingerprint(ua),
	}
}

// Fingerprint hashes a normalized browser|version|os|platform tuple.
// Does NOT include the IP address (too volatile; kept separately for audit).
func Fingerprint(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, version := ua.Browser()

	majorVersion := "unknown"
	if version != "" {
		parts := strings.Split(version, ".")
		if len(parts) > 0 && parts[0] != "" {
			majorVersion = parts[0]
		}
	}

	os := ua.OS()
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}

	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	os = strings.ToLower(strings.TrimSpace(os))
	if os == "" {
		os = "unknown"
	}

	data := fmt.Sprintf("%s|%s|%s|%s", browser, majorVersion, os, platform)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
