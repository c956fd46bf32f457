package password

import "strings"

var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"password", "123456", "12345678", "qwerty", "abc123", "monkey", "1234567", "letmein",
		"trustno1", "dragon", "baseball", "iloveyou", "master", "sunshine", "ashley", "bailey",
		"passw0rd", "shadow", "123123", "654321", "superman", "qazwsx", "michael", "football",
		"welcome", "jesus", "ninja", "mustang", "password1", "123456789", "adobe123", "admin",
		"administrator", "root", "toor", "pass", "test", "guest", "info", "adm", "mysql",
		"user", "oracle", "ftp", "pi", "puppet", "ansible", "ec2-user",
		"vagrant", "azureuser", "admin123", "admin1234", "password123", "passw0rd123",
	} {
		commonPasswords[p] = struct{}{}
	}
}

// IsCommon reports whether password is on the block list. Matching is
// exact after lowercasing.
func IsCommon(password string) bool {
	_, ok := commonPasswords[strings.ToLower(password)]
	return ok
}
