package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"compass.education/internal/audit"
	"compass.education/internal/authn"
	"compass.education/internal/obs"
	"compass.education/internal/ratelimit"
	"compass.education/internal/rbac"
)

// RateLimitPolicy caps requests per caller within a fixed window.
type RateLimitPolicy struct {
	MaxRequests int
	WindowMs    int
}

// Window returns the policy span as a duration.
func (p RateLimitPolicy) Window() time.Duration {
	return time.Duration(p.WindowMs) * time.Millisecond
}

// Policy declares the security requirements of one route. Name keys the rate
// limiter; Resource names the audited table.
type Policy struct {
	Name          string
	RequiredRoles []string
	RateLimit     *RateLimitPolicy
	Resource      string
}

// Pipeline composes resolution, authorization, rate limiting and auditing
// around route handlers. Each stage either passes an enriched request down or
// short-circuits with a denial; later stages never run after a denial.
type Pipeline struct {
	resolver    *authn.Resolver
	limiter     *ratelimit.Limiter
	audit       audit.Logger
	rateLimitOn bool
}

// NewPipeline wires the pipeline stages. auditor may be nil when audit
// logging is disabled.
func NewPipeline(resolver *authn.Resolver, limiter *ratelimit.Limiter, auditor audit.Logger, rateLimitOn bool) (*Pipeline, error) {
	if resolver == nil {
		return nil, errors.New("httpapi: auth resolver is required")
	}
	if limiter == nil {
		return nil, errors.New("httpapi: rate limiter is required")
	}
	if auditor == nil {
		auditor = audit.Discard{}
	}
	return &Pipeline{
		resolver:    resolver,
		limiter:     limiter,
		audit:       auditor,
		rateLimitOn: rateLimitOn,
	}, nil
}

// Secure wraps next with the full security pipeline under the given policy.
func (p *Pipeline) Secure(policy Policy, next http.Handler) http.Handler {
	resource := policy.Resource
	if resource == "" {
		resource = "api"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac := p.resolver.Resolve(r.Context(), r)
		rc := audit.ExtractContext(r, ac.UserID())
		rc.SessionID = ac.SessionID

		if ac.Degraded {
			p.log(r, rc, audit.ActionAuthDegraded, resource, "")
		} else if ac.Authenticated {
			p.log(r, rc, audit.ActionAuthResolved, resource, "")
		}

		if err := rbac.Enforce(ac, policy.RequiredRoles...); err != nil {
			if errors.Is(err, rbac.ErrUnauthenticated) {
				p.log(r, rc, audit.ActionAuthRejected, resource, "")
				respondError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			p.log(r, rc, audit.ActionAccessDenied, resource, "")
			respondError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}

		if p.rateLimitOn && policy.RateLimit != nil {
			caller := ac.UserID()
			if caller == "" {
				caller = clientIP(r)
			}
			dec := p.limiter.Check(ratelimit.Key(caller, policy.Name), policy.RateLimit.MaxRequests, policy.RateLimit.Window())
			if !dec.Allowed {
				obs.RateLimitTrip(policy.Name)
				p.log(r, rc, audit.ActionRateLimited, resource, "")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(dec.RetryAfter)))
				respondError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
		}

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(authn.WithContext(r.Context(), ac)))

		// Handlers can still deny (ownership checks, upload validation); the
		// outcome is recorded whichever way the request went.
		switch {
		case sw.code < http.StatusBadRequest:
			p.log(r, rc, audit.ActionAllowed, resource, "")
		case sw.code == http.StatusUnauthorized:
			p.log(r, rc, audit.ActionAuthRejected, resource, "")
		case sw.code == http.StatusForbidden:
			p.log(r, rc, audit.ActionAccessDenied, resource, "")
		case sw.code == http.StatusTooManyRequests:
			p.log(r, rc, audit.ActionRateLimited, resource, "")
		default:
			p.log(r, rc, audit.ActionDenied, resource, "")
		}
	})
}

func (p *Pipeline) log(r *http.Request, rc audit.RequestContext, action, resource, resourceID string) {
	entry := audit.Entry{
		Action:        action,
		ResourceTable: resource,
		ResourceID:    resourceID,
	}
	rc.Apply(&entry)
	p.audit.Log(r.Context(), entry)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
