package directory

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// rangeMarker matches attribute selectors of the form "member;range=0-1499".
// The high bound is "*" on the terminal chunk.
var rangeMarker = regexp.MustCompile(`(?i)^(.+);range=(\d+)-(\d+|\*)$`)

// expandRanges converts an LDAP entry, replacing any range-marked attribute
// with the full concatenation of its chunks in server-delivered order.
func (c *Client) expandRanges(dn string, le *ldap.Entry) (*Entry, error) {
	entry := fromLDAPEntry(le)
	for i := range entry.Attributes {
		m := rangeMarker.FindStringSubmatch(entry.Attributes[i].Name)
		if m == nil {
			continue
		}
		attr, high := m[1], m[3]
		values := entry.Attributes[i].Values
		raw := entry.Attributes[i].Raw
		if high != "*" {
			rest, restRaw, err := c.fetchRangeTail(dn, attr, high)
			if err != nil {
				return nil, err
			}
			values = append(values, rest...)
			raw = append(raw, restRaw...)
		}
		entry.Attributes[i] = Attribute{Name: attr, Values: values, Raw: raw}
	}
	return &entry, nil
}

// fetchRangeTail pulls the remaining chunks of a ranged attribute, starting
// just past the given high bound, until the server marks the range terminal.
func (c *Client) fetchRangeTail(dn, attr, high string) ([]string, [][]byte, error) {
	var values []string
	var raw [][]byte

	for {
		hi, err := strconv.Atoi(high)
		if err != nil {
			return nil, nil, opError(KindSearchFailed, "range retrieval", dn,
				fmt.Errorf("bad range bound %q: %w", high, err))
		}
		selector := fmt.Sprintf("%s;range=%d-*", attr, hi+1)

		req := ldap.NewSearchRequest(
			dn,
			ldap.ScopeBaseObject,
			ldap.NeverDerefAliases,
			0, 0, false,
			"(objectClass=*)",
			[]string{selector},
			nil,
		)
		res, err := c.conn.Search(req)
		if err != nil {
			return nil, nil, c.fail(opError(KindSearchFailed, "range retrieval", dn, err))
		}
		if len(res.Entries) == 0 {
			return values, raw, nil
		}

		found := false
		for _, a := range res.Entries[0].Attributes {
			m := rangeMarker.FindStringSubmatch(a.Name)
			if m == nil || !strings.EqualFold(m[1], attr) {
				continue
			}
			values = append(values, a.Values...)
			raw = append(raw, a.ByteValues...)
			high = m[3]
			found = true
			break
		}
		if !found || high == "*" {
			return values, raw, nil
		}
	}
}

// GetLargeAttribute fetches one many-valued attribute of an entry through
// range retrieval, regardless of its size.
func (c *Client) GetLargeAttribute(dn, attr string) ([]string, error) {
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		"(objectClass=*)",
		[]string{attr},
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		return nil, c.fail(opError(KindSearchFailed, "range retrieval", dn, err))
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	entry, err := c.expandRanges(dn, res.Entries[0])
	if err != nil {
		return nil, err
	}
	return entry.Get(attr), nil
}

