package ldapfilter_test

import (
	"testing"

	"github.com/sysprog/idmcore/directory/ldapfilter"
)

func TestFilters(t *testing.T) {
	tests := []struct {
		filter ldapfilter.Filter
		want   string
	}{
		{ldapfilter.Eq("sAMAccountName", "jdoe"), "(sAMAccountName=jdoe)"},
		{ldapfilter.Present("userPrincipalName"), "(userPrincipalName=*)"},
		{ldapfilter.Ge("uSNChanged", 4211), "(uSNChanged>=4211)"},
		{
			ldapfilter.And(ldapfilter.Eq("objectCategory", "person"), ldapfilter.Eq("objectClass", "user")),
			"(&(objectCategory=person)(objectClass=user))",
		},
		{
			ldapfilter.Or(ldapfilter.Eq("cn", "a"), ldapfilter.Eq("cn", "b")),
			"(|(cn=a)(cn=b))",
		},
		{
			ldapfilter.Not(ldapfilter.Present("servicePrincipalName")),
			"(!(servicePrincipalName=*))",
		},
		// values are escaped, wildcards included
		{ldapfilter.Eq("cn", "a*b"), `(cn=a\2ab)`},
		{ldapfilter.Raw("(memberOf:1.2.840.113556.1.4.1941:=CN=x)"), "(memberOf:1.2.840.113556.1.4.1941:=CN=x)"},
	}
	for _, test := range tests {
		if got := test.filter.String(); got != test.want {
			t.Errorf("filter = %q, want %q", got, test.want)
		}
	}
}
