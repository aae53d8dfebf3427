// twofa-keygen prints a fresh AES-256 key for the TOTP_ENCRYPTION_KEY
// environment variable.
package main

import (
	"fmt"
	"log"

	"github.com/chatterhq/twofactor/pkg/totp"
)

func main() {
	key, err := totp.GenerateEncryptionKey()
	if err != nil {
		log.Fatalf("failed to generate encryption key: %v", err)
	}
	fmt.Printf("TOTP_ENCRYPTION_KEY=%s\n", key)
}
