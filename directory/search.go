package directory

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/sysprog/idmcore/directory/ldapfilter"
)

// SearchOptions tune the listing operations. The zero value searches the
// client's base DN with no record cap.
type SearchOptions struct {
	// Base overrides the search base DN.
	Base string
	// MaxRecords caps the number of entries delivered. When it is smaller
	// than the configured page size it also shrinks the page.
	MaxRecords int
}

// FindDN resolves a sAMAccountName to its distinguished name. When no entry
// matches, the lookup is retried by userPrincipalName (sam@domain). Returns
// "" without error when neither matches.
func (c *Client) FindDN(sam string) (string, error) {
	dn, err := c.findOneDN(ldapfilter.Or(ldapfilter.Eq("sAMAccountName", sam)).String())
	if err != nil || dn != "" {
		return dn, err
	}
	return c.findOneDN(ldapfilter.Or(ldapfilter.Eq("userPrincipalName", sam+"@"+c.domain)).String())
}

// FindHostDN resolves a host to its DN via the host service principal.
func (c *Client) FindHostDN(host string) (string, error) {
	return c.findOneDN(ldapfilter.Or(ldapfilter.Eq("servicePrincipalName", "host/"+host)).String())
}

// FindUPN returns the lowercased userPrincipalName of an account, or "".
func (c *Client) FindUPN(sam string) (string, error) {
	entry, err := c.GetAttributes(sam, []string{"userPrincipalName"})
	if err != nil || entry == nil {
		return "", err
	}
	return strings.ToLower(entry.First("userPrincipalName")), nil
}

func (c *Client) findOneDN(filter string) (string, error) {
	req := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		[]string{"distinguishedName"},
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		return "", c.fail(opError(KindSearchFailed, "search", "", err))
	}
	if len(res.Entries) == 0 {
		return "", nil
	}
	return res.Entries[0].DN, nil
}

// GetAttributes fetches a single account by sAMAccountName (falling back to
// UPN, as FindDN does) and returns the requested attributes, nil when the
// account does not exist. Range-marked attributes are expanded transparently.
func (c *Client) GetAttributes(sam string, attrs []string) (*Entry, error) {
	dn, err := c.FindDN(sam)
	if err != nil {
		return nil, err
	}
	if dn == "" {
		return nil, nil
	}
	return c.GetDNAttributes(dn, attrs)
}

// GetDNAttributes fetches one entry by DN with a base-scope search.
// Range-marked attributes are expanded transparently.
func (c *Client) GetDNAttributes(dn string, attrs []string) (*Entry, error) {
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		"(objectClass=*)",
		attrs,
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		return nil, c.fail(opError(KindSearchFailed, "search", dn, err))
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	entry, err := c.expandRanges(dn, res.Entries[0])
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetAttributesMatch runs a paged sub-scope search and materializes every
// matching entry. For very large result sets prefer GetAttributesMatchFunc.
func (c *Client) GetAttributesMatch(filter string, attrs []string, opts *SearchOptions) ([]Entry, error) {
	var out []Entry
	err := c.GetAttributesMatchFunc(filter, attrs, opts, func(e Entry) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAttributesMatchFunc streams matching entries to fn without holding the
// result set. fn runs on the search's call stack and must not issue
// operations on the same client; it must not retain the entry's Raw buffers
// after returning.
func (c *Client) GetAttributesMatchFunc(filter string, attrs []string, opts *SearchOptions, fn func(Entry) error) error {
	base := c.baseDN
	maxRecords := 0
	if opts != nil {
		if opts.Base != "" {
			base = opts.Base
		}
		maxRecords = opts.MaxRecords
	}
	return c.pagedSearch(base, filter, attrs, maxRecords, func(le *ldap.Entry) error {
		return fn(fromLDAPEntry(le))
	})
}

// pagedSearch drives the paged-results control: request a page, deliver its
// entries, continue with the returned cookie until the server stops sending
// one. maxRecords caps both the server-side size limit and the outer loop.
func (c *Client) pagedSearch(base, filter string, attrs []string, maxRecords int, fn func(*ldap.Entry) error) error {
	pageSize := c.pageSize
	if maxRecords > 0 && uint32(maxRecords) < pageSize {
		pageSize = uint32(maxRecords)
	}

	paging := ldap.NewControlPaging(pageSize)
	delivered := 0
	pages := 0

	for {
		req := ldap.NewSearchRequest(
			base,
			ldap.ScopeWholeSubtree,
			ldap.NeverDerefAliases,
			maxRecords, 0, false,
			filter,
			attrs,
			[]ldap.Control{paging},
		)
		res, err := c.conn.Search(req)
		if err != nil {
			return c.fail(opError(KindSearchFailed, "search", base, err))
		}
		pages++

		for _, le := range res.Entries {
			if err := fn(le); err != nil {
				return fmt.Errorf("entry callback: %w", err)
			}
			delivered++
			if maxRecords > 0 && delivered >= maxRecords {
				c.log.Debugw("paged search capped", "delivered", delivered, "pages", pages)
				return nil
			}
		}

		ctrl := ldap.FindControl(res.Controls, ldap.ControlTypePaging)
		if ctrl == nil {
			break
		}
		cookie := ctrl.(*ldap.ControlPaging).Cookie
		if len(cookie) == 0 {
			break
		}
		paging.SetCookie(cookie)
		c.log.Debugw("paged search continuing", "delivered", delivered, "pages", pages)
	}

	c.log.Debugw("paged search done", "delivered", delivered, "pages", pages)
	return nil
}

// ListBy lists the lowercased sAMAccountName of every entry whose attr
// equals value, through the paged machinery.
func (c *Client) ListBy(attr, value string) ([]string, error) {
	var names []string
	err := c.GetAttributesMatchFunc(ldapfilter.Eq(attr, value).String(),
		[]string{"sAMAccountName"}, nil, func(e Entry) error {
			if sam := e.First("sAMAccountName"); sam != "" {
				names = append(names, strings.ToLower(sam))
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// GetUserCount counts the entries matching filter without materializing them.
func (c *Client) GetUserCount(filter string) (int, error) {
	n := 0
	err := c.GetAttributesMatchFunc(filter, []string{"distinguishedName"}, nil, func(Entry) error {
		n++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
