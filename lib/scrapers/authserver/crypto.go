package authserver

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

// GeneratePasswordString encrypts a password the way the portal's
// login page does in javascript: 64 bytes of padding ahead of the
// password, pkcs7, then aes-128-cbc with the page-supplied salt as key
// and an all-zero iv, base64 encoded. The page prepends random bytes;
// zeroes work just as well since the server throws the prefix away,
// and they keep the output reproducible.
func GeneratePasswordString(password, salt string) (string, error) {
	block, err := aes.NewCipher([]byte(salt))
	if err != nil {
		return "", fmt.Errorf("bad encrypt salt %q: %w", salt, err)
	}

	data := make([]byte, 64+len(password))
	copy(data[64:], password)
	data = pkcs7Pad(data, aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(data, data)

	return base64.StdEncoding.EncodeToString(data), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	for i := 0; i < n; i++ {
		data = append(data, byte(n))
	}
	return data
}
