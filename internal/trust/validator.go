package trust

// Trust levels, from most to least trusted.
const (
	LevelFull    = "full"
	LevelPartial = "partial"
	LevelNone    = "none"
)

// LevelAtLeast reports whether level satisfies the required minimum.
// Unknown levels never satisfy anything.
func LevelAtLeast(level, required string) bool {
	rank := func(l string) int {
		switch l {
		case LevelFull:
			return 2
		case LevelPartial:
			return 1
		case LevelNone:
			return 0
		default:
			return -1
		}
	}
	return rank(level) >= rank(required)
}

// Input is everything the validator consumes, gathered by the caller
// before validation. Keeping the inputs explicit keeps Validate a pure
// function: identical inputs always produce identical assessments.
type Input struct {
	Identifier       string
	Authenticated    bool
	ClientIP         string
	UserAgent        string
	Fingerprint      string // computed from the current request
	KnownFingerprint string // fingerprint previously recorded for this session, "" if none
	PublicFacing     bool   // whether this deployment is reachable from the public internet
}

// Assessment is the validator's verdict. Reasons always holds at least
// one human-readable justification, since it feeds audit logging.
type Assessment struct {
	Identifier  string
	Level       string
	Reasons     []string
	Fingerprint string
}

// Validator assigns a per-request trust level. It holds no mutable
// state, making it trivially safe under concurrency.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator { return &Validator{} }

// Validate applies the trust decision table in order; the first matching
// rule wins:
//
//  1. Unauthenticated request claiming a private or reserved source IP
//     on a public-facing deployment — spoofing attempt, no trust.
//  2. Unauthenticated, public IP, benign User-Agent — partial trust
//     (may read public data, may not mutate).
//  3. Authenticated with a fingerprint matching the one previously seen
//     for the session — full trust.
//  4. Authenticated with a fingerprint mismatch — possible session
//     hijack; degrade to partial rather than deny outright, and let the
//     caller decide whether to force re-authentication.
//  5. Anything else — no trust.
func (v *Validator) Validate(in Input) Assessment {
	a := Assessment{
		Identifier:  in.Identifier,
		Fingerprint: in.Fingerprint,
	}

	if !in.Authenticated {
		if in.PublicFacing && !IsPublicIP(in.ClientIP) {
			a.Level = LevelNone
			a.Reasons = append(a.Reasons, "unauthenticated request claims private/reserved source address on a public-facing deployment")
			return a
		}
		if IsPublicIP(in.ClientIP) && BenignUserAgent(in.UserAgent) {
			a.Level = LevelPartial
			a.Reasons = append(a.Reasons, "unauthenticated public client with benign user agent")
			return a
		}
		a.Level = LevelNone
		if !BenignUserAgent(in.UserAgent) {
			a.Reasons = append(a.Reasons, "suspicious or missing user agent")
		} else {
			a.Reasons = append(a.Reasons, "unauthenticated request did not match any trust rule")
		}
		return a
	}

	if in.KnownFingerprint == "" || in.KnownFingerprint == in.Fingerprint {
		a.Level = LevelFull
		if in.KnownFingerprint == "" {
			a.Reasons = append(a.Reasons, "authenticated session, first fingerprint observation")
		} else {
			a.Reasons = append(a.Reasons, "authenticated session with matching fingerprint")
		}
		return a
	}

	a.Level = LevelPartial
	a.Reasons = append(a.Reasons, "fingerprint-mismatch")
	return a
}
