package directory

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	objectsid "github.com/bwmarrin/go-objectsid"
)

// The decoders in this file are pure functions over fixed catalogues; they
// never touch the session.

// bitLabel is one catalogue row: a flag bit plus the labels emitted when it
// is set or clear. An empty label suppresses emission.
type bitLabel struct {
	bit     uint32
	ifSet   string
	ifClear string
}

var uacCatalogue = []bitLabel{
	{UACScript, "Logon script executes", ""},
	{UACAccountDisabled, "Account disabled", "Account enabled"},
	{UACHomedirRequired, "Home directory required", ""},
	{UACLockout, "Account locked out", ""},
	{UACPasswordNotRequired, "Password not required", ""},
	{UACPasswordCannotChange, "User cannot change password", ""},
	{UACEncryptedTextPwAllowed, "Encrypted text password allowed", ""},
	{UACTempDuplicateAccount, "Temporary duplicate account", ""},
	{UACNormalAccount, "Normal account", ""},
	{UACInterdomainTrust, "Interdomain trust account", ""},
	{UACWorkstationTrust, "Workstation trust account", ""},
	{UACServerTrust, "Server trust account", ""},
	{UACDontExpirePassword, "Password never expires", ""},
	{UACMNSLogonAccount, "MNS logon account", ""},
	{UACSmartcardRequired, "Smartcard required", ""},
	{UACTrustedForDelegation, "Trusted for delegation", ""},
	{UACNotDelegated, "Not delegated", ""},
	{UACUseDESKeyOnly, "DES keys only", ""},
	{UACDontRequirePreauth, "Kerberos preauthentication not required", ""},
	{UACPasswordExpired, "Password expired", ""},
	{UACTrustedToAuthDelegation, "Trusted to authenticate for delegation", ""},
}

// ParseUAC renders a userAccountControl value as labels, one per catalogue
// row that applies, in catalogue order.
func ParseUAC(uac uint32) []string {
	return parseBits(uac, uacCatalogue)
}

// groupType flag bits.
const (
	GroupSystemCreated   uint32 = 0x00000001
	GroupGlobalScope     uint32 = 0x00000002
	GroupDomainLocal     uint32 = 0x00000004
	GroupUniversalScope  uint32 = 0x00000008
	GroupAppBasic        uint32 = 0x00000010
	GroupAppQuery        uint32 = 0x00000020
	GroupSecurityEnabled uint32 = 0x80000000
)

var groupTypeCatalogue = []bitLabel{
	{GroupSystemCreated, "System-created group", ""},
	{GroupGlobalScope, "Global scope", ""},
	{GroupDomainLocal, "Domain-local scope", ""},
	{GroupUniversalScope, "Universal scope", ""},
	{GroupAppBasic, "APP_BASIC group", ""},
	{GroupAppQuery, "APP_QUERY group", ""},
	{GroupSecurityEnabled, "Security group", "Distribution group"},
}

// ParseGroupType renders a groupType value as labels in catalogue order.
func ParseGroupType(gt uint32) []string {
	return parseBits(gt, groupTypeCatalogue)
}

func parseBits(v uint32, catalogue []bitLabel) []string {
	var out []string
	for _, row := range catalogue {
		label := row.ifClear
		if v&row.bit != 0 {
			label = row.ifSet
		}
		if label != "" {
			out = append(out, label)
		}
	}
	return out
}

var accountTypes = map[uint32]string{
	0x00000000: "Domain Object",
	0x10000000: "Security Global Group",
	0x10000001: "Distribution Group",
	0x20000000: "Security Local Group",
	0x20000001: "Distribution Local Group",
	0x30000000: "Normal Account",
	0x30000001: "Workstation/Server Trust Account",
	0x30000002: "Interdomain Trust Account",
	0x40000000: "App Basic Group",
	0x40000001: "App Query Group",
}

// ParseAccountType renders a sAMAccountType value, "Unknown" for values
// outside the table.
func ParseAccountType(v uint32) string {
	if name, ok := accountTypes[v]; ok {
		return name
	}
	return "Unknown"
}

// protocolSettingsSep separates the fields of a protocolSettings value on
// the wire (UTF-8 section sign).
var protocolSettingsSep = []byte{0xC2, 0xA7}

// ProtocolSettings is a decoded mail protocolSettings value.
type ProtocolSettings struct {
	Protocol      string // POP3, HTTP or IMAP4
	Enabled       bool
	UseDefaults   bool
	MessageFormat string // POP3/IMAP4 only
	Charset       string // POP3/IMAP4 only
	Extra         []string
}

// ParseProtocolSettings decodes one protocolSettings blob. The first field
// names the protocol; the remaining fields follow that protocol's schema,
// with unrecognized trailing fields carried through verbatim.
func ParseProtocolSettings(blob []byte) (*ProtocolSettings, error) {
	parts := bytes.Split(blob, protocolSettingsSep)
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = string(p)
	}

	ps := &ProtocolSettings{Protocol: fields[0]}
	switch ps.Protocol {
	case "POP3", "IMAP4":
		ps.Enabled = fieldAt(fields, 1) == "1"
		ps.UseDefaults = fieldAt(fields, 2) == "1"
		ps.MessageFormat = fieldAt(fields, 3)
		ps.Charset = fieldAt(fields, 4)
		if len(fields) > 5 {
			ps.Extra = fields[5:]
		}
	case "HTTP":
		ps.Enabled = fieldAt(fields, 1) == "1"
		ps.UseDefaults = fieldAt(fields, 2) == "1"
		if len(fields) > 3 {
			ps.Extra = fields[3:]
		}
	default:
		return nil, fmt.Errorf("unknown protocol %q in protocolSettings", ps.Protocol)
	}
	return ps, nil
}

func fieldAt(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

var nonHex = regexp.MustCompile(`[^0-9A-F]`)

// HexSIDToText decodes a hex dump of a binary security identifier into its
// S-1-… text form. Whitespace and any other non-hex characters are ignored.
func HexSIDToText(hexSID string) (string, error) {
	cleaned := nonHex.ReplaceAllString(strings.ToUpper(hexSID), "")
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("bad SID hex: %w", err)
	}
	return sidText(raw)
}

// sidText validates the layout (revision, sub-authority count, 6-byte
// authority, 4 bytes per sub-authority) before handing off to the decoder.
func sidText(raw []byte) (string, error) {
	if len(raw) < 8 {
		return "", fmt.Errorf("SID truncated: %d bytes", len(raw))
	}
	subAuthorities := int(raw[1])
	if want := 8 + 4*subAuthorities; len(raw) < want {
		return "", fmt.Errorf("SID truncated: %d bytes, want %d for %d sub-authorities",
			len(raw), want, subAuthorities)
	}
	sid := objectsid.Decode(raw)
	return sid.String(), nil
}

// SIDText decodes a binary objectSid value as delivered on the wire.
func SIDText(raw []byte) (string, error) {
	return sidText(raw)
}

// filetime anchors: 100ns intervals per second, and the seconds between
// 1601-01-01 and the POSIX epoch.
const (
	filetimeTicksPerSecond = 10_000_000
	filetimeEpochDelta     = 11_644_473_600
)

// ConvertFiletime converts a directory FILETIME (100ns intervals since
// 1601-01-01 UTC) to POSIX seconds.
func ConvertFiletime(v uint64) int64 {
	return int64(v/filetimeTicksPerSecond) - filetimeEpochDelta
}
