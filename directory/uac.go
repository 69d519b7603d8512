package directory

// userAccountControl flag bits, per the directory vendor's catalogue.
const (
	UACScript                  uint32 = 0x00000001
	UACAccountDisabled         uint32 = 0x00000002
	UACHomedirRequired         uint32 = 0x00000008
	UACLockout                 uint32 = 0x00000010
	UACPasswordNotRequired     uint32 = 0x00000020
	UACPasswordCannotChange    uint32 = 0x00000040
	UACEncryptedTextPwAllowed  uint32 = 0x00000080
	UACTempDuplicateAccount    uint32 = 0x00000100
	UACNormalAccount           uint32 = 0x00000200
	UACInterdomainTrust        uint32 = 0x00000800
	UACWorkstationTrust        uint32 = 0x00001000
	UACServerTrust             uint32 = 0x00002000
	UACDontExpirePassword      uint32 = 0x00010000
	UACMNSLogonAccount         uint32 = 0x00020000
	UACSmartcardRequired       uint32 = 0x00040000
	UACTrustedForDelegation    uint32 = 0x00080000
	UACNotDelegated            uint32 = 0x00100000
	UACUseDESKeyOnly           uint32 = 0x00200000
	UACDontRequirePreauth      uint32 = 0x00400000
	UACPasswordExpired         uint32 = 0x00800000
	UACTrustedToAuthDelegation uint32 = 0x01000000
)

// Composite profiles applied by the lifecycle operations.
const (
	// UACNormal is an initialized account whose password never expires.
	UACNormal = UACNormalAccount | UACDontExpirePassword

	// UACComputer is a domain-member machine account.
	UACComputer = UACDontExpirePassword | UACWorkstationTrust |
		UACUseDESKeyOnly | UACTrustedForDelegation

	// UACUnixHost is a host account keyed for legacy Unix single sign-on.
	UACUnixHost = UACNormal | UACTrustedForDelegation | UACUseDESKeyOnly
)

// mergeUAC folds set and reset masks into a current value. Reset wins over
// set for bits named in both.
func mergeUAC(current, set, reset uint32) uint32 {
	return (current | set) &^ reset
}
