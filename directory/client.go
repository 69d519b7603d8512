// Package directory implements an administration client for Microsoft
// Active Directory over LDAP/LDAPS, optionally through the global catalog.
// It covers account lifecycle, password management with the vendor encoding
// rules, paged and range-retrieval searches, and decoding of the bit-packed
// directory attributes.
package directory

import (
	"errors"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/sysprog/idmcore/audit"
)

// bindRetries bounds the bind attempts made during construction. Operations
// after a successful bind are never retried.
const bindRetries = 4

// conn is the part of *ldap.Conn the client drives.
type conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Del(req *ldap.DelRequest) error
	ModifyDN(req *ldap.ModifyDNRequest) error
	SetTimeout(t time.Duration)
	Close() error
}

// dial is swapped out by tests.
var dial = func(cfg *Config) (conn, error) {
	return ldap.DialURL(cfg.url())
}

// Client is a bound LDAP session. A client is not safe to share across
// goroutines; run independent clients for parallelism.
type Client struct {
	cfg   Config
	conn  conn
	log   *zap.SugaredLogger
	audit audit.Sink

	baseDN         string
	domain         string
	pageSize       uint32
	boundPrincipal string

	lastError string // legacy accessor state, see LastError
}

// New dials the configured server and binds as user@domain, retrying the
// bind up to four times. The returned client stays bound until Close.
func New(cfg Config) (*Client, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	password := cfg.Password
	if password == "" {
		if cfg.Auth == nil {
			return nil, &Error{Kind: KindInvalidArgument, Op: "bind",
				Err: errNoCredentials}
		}
		var err error
		password, err = cfg.Auth.Get(cfg.User, authRealm)
		if err != nil {
			return nil, &Error{Kind: KindBindFailed, Op: "bind", Err: err}
		}
	}

	c := &Client{
		cfg:      cfg,
		log:      cfg.Logger,
		audit:    cfg.Audit,
		baseDN:   cfg.BaseDN,
		domain:   cfg.Domain,
		pageSize: cfg.PageSize,
	}

	var lastErr error
	for attempt := 1; attempt <= bindRetries; attempt++ {
		lc, err := dial(&cfg)
		if err != nil {
			lastErr = err
			c.log.Debugw("dial failed", "url", cfg.url(), "attempt", attempt, "error", err)
			continue
		}
		lc.SetTimeout(cfg.Timeout)
		if err := lc.Bind(cfg.principal(), password); err != nil {
			lastErr = err
			_ = lc.Close()
			c.log.Debugw("bind failed", "principal", cfg.principal(), "attempt", attempt, "error", err)
			continue
		}
		c.conn = lc
		c.boundPrincipal = cfg.principal()
		c.log.Debugw("bound", "principal", c.boundPrincipal, "server", cfg.Server, "port", cfg.Port)
		return c, nil
	}

	return nil, c.fail(opError(KindBindFailed, "bind", "", lastErr))
}

// BaseDN returns the search base every operation defaults to.
func (c *Client) BaseDN() string { return c.baseDN }

// BoundPrincipal returns the identity the session is bound as.
func (c *Client) BoundPrincipal() string { return c.boundPrincipal }

// Close tears the session down. The client must not be used afterwards.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// LastError returns the message of the most recent failed operation. It
// exists for callers of the previous generation of this library; new code
// should consume the error values returned by each operation.
func (c *Client) LastError() string { return c.lastError }

// fail records the legacy last-error message and passes err through.
func (c *Client) fail(err *Error) error {
	c.lastError = err.Error()
	return err
}

func (c *Client) record(op, target string, fields map[string]string) {
	e := audit.NewEvent(c.boundPrincipal, op, target)
	for k, v := range fields {
		e.Fields[k] = v
	}
	c.audit.Record(e)
}

var errNoCredentials = errors.New("no password and no credential provider configured")
