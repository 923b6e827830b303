package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// emailPattern accepts the addresses the portal's sign-up form accepts.
var emailPattern = regexp.MustCompile(`^(?i)[a-z0-9._%+\-]+@(?:[a-z0-9\-]+\.)+[a-z]{2,}$`)

// ValidateEmail takes an email string as input and returns a boolean indicating whether the input is a valid email address.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// PrintError prints message inside a banner so it stands out in the shell.
func PrintError(message string) {
	message = "ERROR: " + message
	bannerChar := "="
	bannerLine := strings.Repeat(bannerChar, len(message)+4)

	fmt.Println(bannerLine)
	fmt.Printf("%s %s %s\n", bannerChar, message, bannerChar)
	fmt.Println(bannerLine)
	fmt.Println()
}
