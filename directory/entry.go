package directory

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Attribute is one named attribute with its values in server order. Values
// holds the textual form; Raw keeps the wire octets for the attributes that
// are binary on the wire (objectSid, objectGUID, ntSecurityDescriptor).
type Attribute struct {
	Name   string
	Values []string
	Raw    [][]byte
}

// Entry is a directory entry: a DN plus its attributes in server-delivered
// order. Attribute names compare case-insensitively.
type Entry struct {
	DN         string
	Attributes []Attribute
}

// Get returns the values of the named attribute, or nil.
func (e *Entry) Get(name string) []string {
	for i := range e.Attributes {
		if strings.EqualFold(e.Attributes[i].Name, name) {
			return e.Attributes[i].Values
		}
	}
	return nil
}

// First returns the first value of the named attribute, or "".
func (e *Entry) First(name string) string {
	if vs := e.Get(name); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// GetRaw returns the raw octet values of the named attribute, or nil.
func (e *Entry) GetRaw(name string) [][]byte {
	for i := range e.Attributes {
		if strings.EqualFold(e.Attributes[i].Name, name) {
			return e.Attributes[i].Raw
		}
	}
	return nil
}

func fromLDAPEntry(le *ldap.Entry) Entry {
	e := Entry{DN: le.DN, Attributes: make([]Attribute, 0, len(le.Attributes))}
	for _, a := range le.Attributes {
		e.Attributes = append(e.Attributes, Attribute{
			Name:   a.Name,
			Values: a.Values,
			Raw:    a.ByteValues,
		})
	}
	return e
}
