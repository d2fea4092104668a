// Package identity turns request credentials into a resolved caller.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/credential"
	"github.com/google/uuid"
)

// Kind is the closed set of caller kinds.
type Kind int

const (
	KindUser Kind = iota + 1
	KindProjectKey
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindProjectKey:
		return "project_key"
	default:
		return "unknown"
	}
}

// Identity is either a human operator (UserID, GlobalRole) or an API key
// acting for exactly one project (ProjectID).
type Identity struct {
	Kind       Kind
	UserID     uuid.UUID
	GlobalRole string
	ProjectID  uuid.UUID
}

func User(userID uuid.UUID, globalRole string) Identity {
	return Identity{Kind: KindUser, UserID: userID, GlobalRole: globalRole}
}

func ProjectKey(projectID uuid.UUID) Identity {
	return Identity{Kind: KindProjectKey, ProjectID: projectID}
}

func (i Identity) IsUser() bool { return i.Kind == KindUser }

func (i Identity) IsProjectKey() bool { return i.Kind == KindProjectKey }

var (
	ErrMissingCredential   = apperr.New(apperr.KindAuthentication, "missing_credential", "Missing credentials")
	ErrMalformedCredential = apperr.New(apperr.KindAuthentication, "malformed_credential", "Malformed credentials")
	ErrInvalidOrExpired    = apperr.New(apperr.KindAuthentication, "invalid_or_expired", "Invalid or expired token")
	ErrUnknownKey          = apperr.New(apperr.KindAuthentication, "unknown_key", "Unknown API key")
)

// ErrProjectNotFound is returned by a ProjectLookup when no project holds
// the key.
var ErrProjectNotFound = errors.New("project not found")

type ProjectLookup interface {
	FindProjectIDByAPIKey(ctx context.Context, apiKey string) (uuid.UUID, error)
}

// Credentials are the raw values taken from the transport.
type Credentials struct {
	Authorization string
	APIKey        string
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedCredential
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedCredential
	}
	return token, nil
}

type Resolver struct {
	codec    *credential.Codec
	projects ProjectLookup
}

func NewResolver(codec *credential.Codec, projects ProjectLookup) *Resolver {
	return &Resolver{codec: codec, projects: projects}
}

// Resolve verifies creds. A bearer token takes precedence over an API key.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (Identity, error) {
	if strings.TrimSpace(creds.Authorization) != "" {
		token, err := ParseBearer(creds.Authorization)
		if err != nil {
			return Identity{}, err
		}
		claims, err := r.codec.Verify(token)
		if err != nil {
			if errors.Is(err, credential.ErrMalformedToken) {
				return Identity{}, ErrMalformedCredential
			}
			return Identity{}, ErrInvalidOrExpired
		}
		return FromClaims(claims)
	}

	key := strings.TrimSpace(creds.APIKey)
	if key == "" {
		return Identity{}, ErrMissingCredential
	}
	projectID, err := r.projects.FindProjectIDByAPIKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return Identity{}, ErrUnknownKey
		}
		return Identity{}, apperr.Internal(err, "Failed to resolve API key")
	}
	return ProjectKey(projectID), nil
}

// FromClaims builds an identity from already verified claims.
func FromClaims(claims *credential.Claims) (Identity, error) {
	switch claims.Scope {
	case credential.ScopeUser:
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return Identity{}, ErrMalformedCredential
		}
		return User(userID, claims.Role), nil
	case credential.ScopeAPIKey:
		if claims.ProjectID == nil {
			return Identity{}, ErrMalformedCredential
		}
		projectID, err := uuid.Parse(*claims.ProjectID)
		if err != nil {
			return Identity{}, ErrMalformedCredential
		}
		return ProjectKey(projectID), nil
	default:
		return Identity{}, ErrMalformedCredential
	}
}
