package jwxt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// fetchPublicKey pulls the login key zhengfang publishes as base64
// big-endian modulus and exponent.
func (c *Client) fetchPublicKey(ctx context.Context) (modulus, exponent []byte, err error) {
	res, err := c.Http.Get(ctx, c.BaseURL+publicKeyPath)
	if err != nil {
		return nil, nil, err
	}

	var key struct {
		Modulus  string `json:"modulus"`
		Exponent string `json:"exponent"`
	}
	if err := json.Unmarshal(res.Body(), &key); err != nil {
		return nil, nil, fmt.Errorf("malformed public key response: %w", err)
	}

	modulus, err = base64.StdEncoding.DecodeString(key.Modulus)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed key modulus: %w", err)
	}
	exponent, err = base64.StdEncoding.DecodeString(key.Exponent)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed key exponent: %w", err)
	}
	return modulus, exponent, nil
}

// encryptPassword seals the password with rsa pkcs1v15 under the
// page-supplied key, base64 encoded the way the login form expects.
func encryptPassword(password string, modulus, exponent []byte) (string, error) {
	e := new(big.Int).SetBytes(exponent)
	if !e.IsInt64() || e.Int64() <= 0 {
		return "", fmt.Errorf("unusable public exponent")
	}
	pub := &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(e.Int64()),
	}

	sealed, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(password))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}
