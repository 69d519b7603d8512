package directory

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/sysprog/idmcore/audit"
	"github.com/sysprog/idmcore/auth"
)

// Default ports for the directory service and the global catalog.
const (
	PortLDAP  = 389
	PortLDAPS = 636
	PortGC    = 3268
	PortGCS   = 3269
)

// authRealm is the realm passed to the credential provider when the
// configuration leaves the password empty.
const authRealm = "ads"

// Config is the explicit construction record for a Client. Zero values take
// the documented defaults; unknown options cannot exist by construction.
type Config struct {
	User     string
	Password string // empty: fetched via Auth
	Domain   string // e.g. "mst.edu"
	Server   string // default "ldap.<domain>"
	Port     int    // default derived from DisableTLS/GlobalCatalog

	// DisableTLS switches the transport to plain LDAP. TLS is the default.
	DisableTLS bool

	// GlobalCatalog binds to the forest-wide catalog ports and widens the
	// default search base to the forest root suffix.
	GlobalCatalog bool

	PageSize uint32        `default:"25"`
	Timeout  time.Duration `default:"60s"`
	Debug    bool
	BaseDN   string // default derived from Domain

	Logger *zap.SugaredLogger
	Auth   auth.Provider
	Audit  audit.Sink
}

func (c *Config) normalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if c.User == "" {
		return &Error{Kind: KindInvalidArgument, Op: "configure", Err: fmt.Errorf("user is required")}
	}
	if c.Domain == "" {
		return &Error{Kind: KindInvalidArgument, Op: "configure", Err: fmt.Errorf("domain is required")}
	}
	if c.Server == "" {
		c.Server = "ldap." + c.Domain
	}
	if c.Port == 0 {
		c.Port = defaultPort(c.GlobalCatalog, !c.DisableTLS)
	}
	if c.BaseDN == "" {
		c.BaseDN = defaultBaseDN(c.Domain, c.GlobalCatalog)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.Audit == nil {
		c.Audit = audit.Nop{}
	}
	return nil
}

func defaultPort(gc, tls bool) int {
	switch {
	case gc && tls:
		return PortGCS
	case gc:
		return PortGC
	case tls:
		return PortLDAPS
	default:
		return PortLDAP
	}
}

// defaultBaseDN maps a DNS domain to its directory suffix: "mst.edu" becomes
// "DC=mst,DC=edu". Global catalog searches span the forest, so the base
// narrows to the rightmost label only.
func defaultBaseDN(domain string, gc bool) string {
	labels := strings.Split(domain, ".")
	if gc {
		labels = labels[len(labels)-1:]
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = "DC=" + l
	}
	return strings.Join(parts, ",")
}

func (c *Config) url() string {
	scheme := "ldaps"
	if c.DisableTLS {
		scheme = "ldap"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Server, c.Port)
}

// principal is the bind identity, user@domain.
func (c *Config) principal() string {
	return c.User + "@" + c.Domain
}
