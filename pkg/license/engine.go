package license

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// MessageBound is returned by the validate call that attaches a hwid.
	MessageBound = "hardware bound"
	// MessageValid is returned by every other successful validate.
	MessageValid = "license valid"

	maxGenerateAttempts = 3
)

// Policy holds the deployment toggles of the lifecycle.
type Policy struct {
	KeyPrefix         string
	DefaultHwidResets int
	// RequireClaim rejects validation of licenses without an owner identity.
	RequireClaim bool
	// RequireHwid rejects validation calls that carry no hardware id.
	RequireHwid bool
	// MaxBindAttempts bounds the compare-and-swap retry loop.
	MaxBindAttempts int
}

// DefaultPolicy mirrors the production deployment.
func DefaultPolicy() Policy {
	return Policy{
		KeyPrefix:         DefaultKeyPrefix,
		DefaultHwidResets: 1,
		RequireClaim:      true,
		RequireHwid:       false,
		MaxBindAttempts:   5,
	}
}

// Authorizer checks an admin credential.
type Authorizer interface {
	Authorize(credential string) bool
}

// ValidateRequest is the input of Engine.Validate. Hwid may be empty for the
// liveness variant.
type ValidateRequest struct {
	LicenseKey string
	Hwid       string
	SourceIP   string
}

// ValidateResult is returned for successful validations.
type ValidateResult struct {
	Valid   bool
	Message string
	// NewlyBound is true only for the call that attached the hwid.
	NewlyBound bool
}

// ResetLookup names exactly one field to find the license to reset by.
type ResetLookup struct {
	LicenseKey    string
	OwnerIdentity string
}

// Engine applies lifecycle transitions to licenses held in a Store. It keeps
// no state between calls.
type Engine struct {
	store  Store
	auth   Authorizer
	policy Policy
	in     instruments
	nowFn  func() time.Time
	newID  func() string
}

// Option customises an Engine or a Detector.
type Option func(*instruments)

// WithRecorder sends operation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(in *instruments) {
		if r != nil {
			in.recorder = r
		}
	}
}

// WithLogger sets the logger used for operation outcomes.
func WithLogger(l zerolog.Logger) Option {
	return func(in *instruments) {
		in.logger = l.With().Str("component", "license").Logger()
	}
}

func NewEngine(store Store, auth Authorizer, policy Policy, opts ...Option) *Engine {
	if policy.MaxBindAttempts <= 0 {
		policy.MaxBindAttempts = DefaultPolicy().MaxBindAttempts
	}
	if policy.DefaultHwidResets < 0 {
		policy.DefaultHwidResets = 0
	}
	if policy.KeyPrefix == "" {
		policy.KeyPrefix = DefaultKeyPrefix
	}
	in := defaultInstruments()
	for _, opt := range opts {
		opt(&in)
	}
	return &Engine{
		store:  store,
		auth:   auth,
		policy: policy,
		in:     in,
		nowFn:  func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

func (e *Engine) authorize(credential string) error {
	if e.auth == nil || !e.auth.Authorize(credential) {
		return ErrUnauthorized
	}
	return nil
}

// Generate issues a new license, optionally pre-claimed by owner.
func (e *Engine) Generate(ctx context.Context, credential, owner string) (key string, err error) {
	ctx, done := e.in.start(ctx, OpGenerate, "")
	defer func() { done(err) }()

	if err := e.authorize(credential); err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		key, err = GenerateKey(e.policy.KeyPrefix)
		if err != nil {
			return "", &Error{Kind: KindStoreUnavailable, Message: "generate key", Err: err}
		}
		record := License{
			Key:                 key,
			OwnerIdentity:       NormalizeText(owner),
			HwidResetsRemaining: e.policy.DefaultHwidResets,
			CreatedAt:           e.nowFn(),
		}
		err = e.store.InsertLicense(ctx, record)
		if errors.Is(err, ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return "", storeUnavailable("insert license", err)
		}
		return key, nil
	}
	return "", storeUnavailable("insert license", ErrDuplicateKey)
}

// Claim attaches owner to the license. Claiming again with the same owner
// succeeds without a write.
func (e *Engine) Claim(ctx context.Context, rawKey, rawOwner string) (err error) {
	key := NormalizeKey(rawKey)
	owner := NormalizeText(rawOwner)
	ctx, done := e.in.start(ctx, OpClaim, key)
	defer func() { done(err) }()

	if key == "" || owner == "" {
		return invalidInput("missing license_key or owner_identity")
	}

	_, err = e.update(ctx, OpClaim, e.byKey(key), func(l License) (License, bool, error) {
		if l.Revoked {
			return l, false, ErrRevoked
		}
		if l.Claimed() {
			if l.OwnerIdentity != owner {
				return l, false, ErrAlreadyClaimed
			}
			return l, false, nil
		}
		l.OwnerIdentity = owner
		return l, true, nil
	})
	return err
}

// Validate checks a license and binds it to req.Hwid on first use. A hwid
// mismatch is returned as ErrHwidMismatch. Every call that reaches the
// hardware decision appends one access log entry after that decision is
// committed.
//
// The append is synchronous: Validate returns only once the entry is written
// or has failed, so the caller waits for one INSERT past the commit. A failed
// append is logged and counted but never changes the result.
func (e *Engine) Validate(ctx context.Context, req ValidateRequest) (res ValidateResult, err error) {
	key := NormalizeKey(req.LicenseKey)
	hwid := NormalizeHwid(req.Hwid)
	ctx, done := e.in.start(ctx, OpValidate, key)
	defer func() { done(err) }()

	if key == "" {
		return ValidateResult{}, invalidInput("missing license_key")
	}
	if e.policy.RequireHwid && hwid == "" {
		return ValidateResult{}, invalidInput("missing hwid")
	}

	decided := false
	_, err = e.update(ctx, OpValidate, e.byKey(key), func(l License) (License, bool, error) {
		decided = false
		res = ValidateResult{}
		if l.Revoked {
			return l, false, ErrRevoked
		}
		if e.policy.RequireClaim && !l.Claimed() {
			return l, false, ErrNotRedeemed
		}
		decided = true
		switch {
		case hwid == "" || l.Hwid == hwid:
			res = ValidateResult{Valid: true, Message: MessageValid}
			return l, false, nil
		case !l.Bound():
			now := e.nowFn()
			l.Hwid = hwid
			l.ActivatedAt = &now
			res = ValidateResult{Valid: true, Message: MessageBound, NewlyBound: true}
			return l, true, nil
		default:
			return l, false, ErrHwidMismatch
		}
	})
	if decided && (err == nil || errors.Is(err, ErrHwidMismatch)) {
		e.appendAccess(ctx, key, hwid, req.SourceIP)
	}
	if err != nil {
		return ValidateResult{}, err
	}
	return res, nil
}

// Revoke permanently disables a license.
func (e *Engine) Revoke(ctx context.Context, credential, rawKey string) (err error) {
	key := NormalizeKey(rawKey)
	ctx, done := e.in.start(ctx, OpRevoke, key)
	defer func() { done(err) }()

	if err := e.authorize(credential); err != nil {
		return err
	}
	if key == "" {
		return invalidInput("missing license_key")
	}
	if err := e.store.MarkRevoked(ctx, key); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrNotFound
		}
		return storeUnavailable("revoke license", err)
	}
	return nil
}

// ResetHwid clears the bound hwid and spends one reset. It returns the
// number of resets left.
func (e *Engine) ResetHwid(ctx context.Context, credential string, lookup ResetLookup) (remaining int, err error) {
	key := NormalizeKey(lookup.LicenseKey)
	owner := NormalizeText(lookup.OwnerIdentity)
	ctx, done := e.in.start(ctx, OpResetHwid, key)
	defer func() { done(err) }()

	if err := e.authorize(credential); err != nil {
		return 0, err
	}

	var load func(context.Context) (License, error)
	switch {
	case key != "" && owner != "":
		return 0, invalidInput("specify either license_key or owner_identity, not both")
	case key != "":
		load = e.byKey(key)
	case owner != "":
		load = e.byOwner(owner)
	default:
		return 0, invalidInput("missing license_key or owner_identity")
	}

	updated, err := e.update(ctx, OpResetHwid, load, func(l License) (License, bool, error) {
		if l.Revoked {
			return l, false, ErrRevoked
		}
		if l.HwidResetsRemaining <= 0 {
			return l, false, ErrNoResetsRemaining
		}
		l.Hwid = ""
		l.ActivatedAt = nil
		l.HwidResetsRemaining--
		return l, true, nil
	})
	if err != nil {
		return 0, err
	}
	return updated.HwidResetsRemaining, nil
}

// Inspect returns the stored record for operators.
func (e *Engine) Inspect(ctx context.Context, credential, rawKey string) (l License, err error) {
	key := NormalizeKey(rawKey)
	ctx, done := e.in.start(ctx, OpInspect, key)
	defer func() { done(err) }()

	if err := e.authorize(credential); err != nil {
		return License{}, err
	}
	if key == "" {
		return License{}, invalidInput("missing license_key")
	}
	return e.byKey(key)(ctx)
}

// update loads a license, applies fn and writes the result with a
// compare-and-swap. On a version conflict the license is re-read and fn is
// applied again, up to MaxBindAttempts times.
func (e *Engine) update(ctx context.Context, op string, load func(context.Context) (License, error), fn func(License) (License, bool, error)) (License, error) {
	for attempt := 1; ; attempt++ {
		current, err := load(ctx)
		if err != nil {
			return License{}, err
		}
		next, write, err := fn(current)
		if err != nil || !write {
			return next, err
		}
		err = e.store.CompareAndSwapLicense(ctx, current.Version, next)
		switch {
		case err == nil:
			next.Version = current.Version + 1
			return next, nil
		case errors.Is(err, ErrVersionConflict):
			if attempt >= e.policy.MaxBindAttempts {
				return License{}, storeUnavailable(op, err)
			}
			e.in.logger.Debug().Str("op", op).Str("license_key", current.Key).Int("attempt", attempt).Msg("license write conflict, retrying")
		case errors.Is(err, ErrRecordNotFound):
			return License{}, ErrNotFound
		default:
			return License{}, storeUnavailable(op, err)
		}
	}
}

func (e *Engine) byKey(key string) func(context.Context) (License, error) {
	return func(ctx context.Context) (License, error) {
		l, err := e.store.GetLicense(ctx, key)
		if errors.Is(err, ErrRecordNotFound) {
			return License{}, ErrNotFound
		}
		if err != nil {
			return License{}, storeUnavailable("load license", err)
		}
		return l, nil
	}
}

func (e *Engine) byOwner(owner string) func(context.Context) (License, error) {
	return func(ctx context.Context) (License, error) {
		found, err := e.store.FindLicensesByOwner(ctx, owner)
		if err != nil {
			return License{}, storeUnavailable("find license by owner", err)
		}
		switch len(found) {
		case 0:
			return License{}, ErrNotFound
		case 1:
			return found[0], nil
		default:
			return License{}, invalidInput("owner_identity matches several licenses, reset by license_key")
		}
	}
}

func (e *Engine) appendAccess(ctx context.Context, key, hwid, ip string) {
	ctx, done := e.in.start(ctx, OpLedgerAppend, key)
	err := e.store.AppendAccessLog(ctx, AccessLogEntry{
		ID:         e.newID(),
		LicenseKey: key,
		Hwid:       hwid,
		SourceIP:   ip,
		Timestamp:  e.nowFn(),
	})
	if err != nil {
		err = storeUnavailable("append access log", err)
	}
	done(err)
}
