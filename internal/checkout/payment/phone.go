package payment

import (
	"regexp"
	"strings"

	"insurance-checkout/internal/common/errors"
)

// Local mobile-money numbers: 07XXXXXXXX, 010XXXXXXX and 011XXXXXXX.
var localPhonePattern = regexp.MustCompile(`^0(7\d|1[01])\d{7}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizePhone strips separators, converts +254/254 prefixes to the local
// leading zero and checks the mobile-money prefix.
func NormalizePhone(raw string) (string, error) {
	phone := phoneSeparators.Replace(strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "254") && len(phone) == 12 {
		phone = "0" + phone[3:]
	}

	if !localPhonePattern.MatchString(phone) {
		return "", errors.NewPaymentRejectedError(
			"Enter a valid mobile money number, for example 0712345678",
			"unrecognised phone number "+raw,
		)
	}
	return phone, nil
}
