package utils

// ValidateLuhn checks if a string of digits passes the Luhn checksum
func ValidateLuhn(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	parity := len(number) % 2
	for i, r := range number {
		if r < '0' || r > '9' {
			return false
		}
		digit := int(r - '0')
		if i%2 == parity {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}

	return sum%10 == 0
}

// ValidateCardNumber accepts 12 to 19 digit numbers with a valid Luhn checksum
func ValidateCardNumber(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	return ValidateLuhn(number)
}
