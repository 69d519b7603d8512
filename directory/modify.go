package directory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// GroupTypeSecurityDomainLocal is the groupType written for new security
// groups: security-enabled, domain-local scope.
const GroupTypeSecurityDomainLocal uint32 = 0x80000004

// initialPasswordLength is the length of the random password a fresh
// account is created with.
const initialPasswordLength = 22

// CreateUserRequest names a new user account. SPN is optional.
type CreateUserRequest struct {
	DN             string
	SAMAccountName string
	DisplayName    string
	UPN            string
	SPN            []string
}

// AttrChange is one attribute with replacement/addition/deletion values for
// SetAttributes. Order within each list is preserved on the wire.
type AttrChange struct {
	Name   string
	Values []string
}

// CreateUser adds a user object with a random initial password, disabled,
// then enables it with the normal-account profile (password never expires,
// password required).
func (c *Client) CreateUser(req CreateUserRequest) error {
	if req.DN == "" || req.SAMAccountName == "" || req.DisplayName == "" || req.UPN == "" {
		return &Error{Kind: KindInvalidArgument, Op: "create user",
			Err: fmt.Errorf("dn, sam, displayname and upn are all required")}
	}

	password, err := randomPassword(initialPasswordLength)
	if err != nil {
		return &Error{Kind: KindCreateFailed, Op: "create user", DN: req.DN, Err: err}
	}

	add := ldap.NewAddRequest(req.DN, nil)
	add.Attribute("objectClass", []string{"top", "person", "organizationalPerson", "user"})
	add.Attribute("sAMAccountName", []string{req.SAMAccountName})
	add.Attribute("displayName", []string{req.DisplayName})
	add.Attribute("userPrincipalName", []string{req.UPN})
	if len(req.SPN) > 0 {
		add.Attribute("servicePrincipalName", req.SPN)
	}
	add.Attribute("unicodePwd", []string{string(EncodePassword(password))})
	add.Attribute("userAccountControl", []string{"0"})

	if err := c.conn.Add(add); err != nil {
		return c.fail(opError(KindCreateFailed, "create user", req.DN, err))
	}

	// The account comes up disabled; bring it to the normal profile and
	// require a password.
	if err := c.ModifyUACBits(req.SAMAccountName, UACNormal,
		UACAccountDisabled|UACPasswordNotRequired); err != nil {
		return err
	}

	c.record("create user", req.DN, map[string]string{
		"sam": req.SAMAccountName,
		"upn": req.UPN,
	})
	return nil
}

// CreateSecurityGroup adds a security-enabled domain-local group. When ou is
// empty, names matching the netgroup prefix land in the NetGroups OU; any
// other name requires an explicit ou.
func (c *Client) CreateSecurityGroup(group, ou string) error {
	if group == "" {
		return &Error{Kind: KindInvalidArgument, Op: "create group",
			Err: fmt.Errorf("group name is required")}
	}
	if ou == "" {
		if !strings.HasPrefix(group, "ng-") {
			return &Error{Kind: KindInvalidArgument, Op: "create group",
				Err: fmt.Errorf("no ou given for group %q", group)}
		}
		ou = "OU=NetGroups," + c.baseDN
	}

	dn := "CN=" + group + "," + ou
	add := ldap.NewAddRequest(dn, nil)
	add.Attribute("objectClass", []string{"top", "group"})
	add.Attribute("sAMAccountName", []string{group})
	groupType := GroupTypeSecurityDomainLocal
	add.Attribute("groupType", []string{strconv.Itoa(int(int32(groupType)))})

	if err := c.conn.Add(add); err != nil {
		return c.fail(opError(KindCreateFailed, "create group", dn, err))
	}

	c.record("create group", dn, map[string]string{"group": group})
	return nil
}

// DeleteUser removes the account named by sam.
func (c *Client) DeleteUser(sam string) error {
	dn, err := c.resolveDN(sam, "delete user")
	if err != nil {
		return err
	}
	if err := c.conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		return c.fail(opError(KindDeleteFailed, "delete user", dn, err))
	}
	c.record("delete user", dn, map[string]string{"sam": sam})
	return nil
}

// SetAttributes issues one modify carrying the replace, add and delete
// operations in that order. At least one list must be non-empty.
func (c *Client) SetAttributes(userid string, replace, add, del []AttrChange) error {
	if len(replace) == 0 && len(add) == 0 && len(del) == 0 {
		return &Error{Kind: KindInvalidArgument, Op: "set attributes",
			Err: fmt.Errorf("no replace, add or delete operations given")}
	}

	dn, err := c.resolveDN(userid, "set attributes")
	if err != nil {
		return err
	}

	mod := ldap.NewModifyRequest(dn, nil)
	for _, ch := range replace {
		mod.Replace(ch.Name, ch.Values)
	}
	for _, ch := range add {
		mod.Add(ch.Name, ch.Values)
	}
	for _, ch := range del {
		mod.Delete(ch.Name, ch.Values)
	}

	if err := c.conn.Modify(mod); err != nil {
		return c.fail(opError(KindModifyFailed, "set attributes", dn, err))
	}

	c.record("set attributes", dn, map[string]string{
		"attrs": changeNames(replace, add, del),
	})
	return nil
}

// SetPassword replaces the account password and clears the
// password-not-required bit, which every password set implies.
func (c *Client) SetPassword(userid, password string) error {
	dn, err := c.resolveDN(userid, "set password")
	if err != nil {
		return err
	}

	mod := ldap.NewModifyRequest(dn, nil)
	mod.Replace("unicodePwd", []string{string(EncodePassword(password))})
	if err := c.conn.Modify(mod); err != nil {
		return c.fail(opError(KindModifyFailed, "set password", dn, err))
	}

	if err := c.ModifyUACBits(userid, 0, UACPasswordNotRequired); err != nil {
		return err
	}

	c.record("set password", dn, nil)
	return nil
}

// MoveUser relocates an account under the target container, keeping its CN.
// Commas inside the CN are escaped for the new RDN.
func (c *Client) MoveUser(userid, target string) error {
	dn, err := c.resolveDN(userid, "move user")
	if err != nil {
		return err
	}

	entry, err := c.GetDNAttributes(dn, []string{"cn"})
	if err != nil {
		return err
	}
	if entry == nil {
		return c.fail(opError(KindNotFound, "move user", dn, fmt.Errorf("entry vanished")))
	}
	cn := entry.First("cn")
	if cn == "" {
		return c.fail(opError(KindMoveFailed, "move user", dn, fmt.Errorf("entry has no cn")))
	}

	newRDN := "cn=" + strings.ReplaceAll(cn, ",", `\,`)
	req := ldap.NewModifyDNRequest(dn, newRDN, true, target)
	if err := c.conn.ModifyDN(req); err != nil {
		return c.fail(opError(KindMoveFailed, "move user", dn, err))
	}

	c.record("move user", dn, map[string]string{"target": target})
	return nil
}

// Enable marks the account initialized and clears the disabled bit.
func (c *Client) Enable(sam string) error {
	return c.ModifyUACBits(sam, UACNormalAccount, UACAccountDisabled)
}

// Disable sets the disabled bit.
func (c *Client) Disable(sam string) error {
	return c.ModifyUACBits(sam, UACAccountDisabled, 0)
}

// ModifyUACBits reads the current userAccountControl, folds in the set and
// reset masks (reset wins), and writes the result back.
func (c *Client) ModifyUACBits(userid string, set, reset uint32) error {
	entry, err := c.GetAttributes(userid, []string{"userAccountControl"})
	if err != nil {
		return err
	}
	if entry == nil {
		return c.fail(opError(KindNotFound, "modify uac", "", fmt.Errorf("no entry for %q", userid)))
	}

	current, err := strconv.ParseUint(entry.First("userAccountControl"), 10, 32)
	if err != nil {
		return c.fail(opError(KindModifyFailed, "modify uac", entry.DN,
			fmt.Errorf("bad userAccountControl %q: %w", entry.First("userAccountControl"), err)))
	}

	updated := mergeUAC(uint32(current), set, reset)
	err = c.SetAttributes(userid, []AttrChange{{
		Name:   "userAccountControl",
		Values: []string{strconv.FormatUint(uint64(updated), 10)},
	}}, nil, nil)
	if err != nil {
		return err
	}

	if c.cfg.Debug {
		if after, err := c.GetAttributes(userid, []string{"userAccountControl"}); err == nil && after != nil {
			c.log.Debugw("uac updated", "dn", after.DN,
				"before", current, "after", after.First("userAccountControl"))
		}
	}
	return nil
}

// resolveDN accepts either a DN or a sAMAccountName.
func (c *Client) resolveDN(id, op string) (string, error) {
	if strings.ContainsRune(id, '=') {
		return id, nil
	}
	dn, err := c.FindDN(id)
	if err != nil {
		return "", err
	}
	if dn == "" {
		return "", c.fail(opError(KindNotFound, op, "", fmt.Errorf("no entry for %q", id)))
	}
	return dn, nil
}

func changeNames(lists ...[]AttrChange) string {
	var names []string
	for _, list := range lists {
		for _, ch := range list {
			names = append(names, ch.Name)
		}
	}
	return strings.Join(names, ",")
}
