package chain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	aesKeyLen        = 32
)

// encryptedKeyJSON is the on-disk format for an encrypted signer key.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig carries what LoadKey needs to resolve the oracle bot's private
// key: either a raw hex key or an encrypted key file plus password.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// LoadKey resolves the signer private key. A raw hex key wins when set;
// otherwise the encrypted file is decrypted with the configured password.
func LoadKey(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	if cfg.RawPrivateKey != "" {
		pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.RawPrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("chain: invalid private key: %w", err)
		}
		return pk, nil
	}

	if cfg.EncryptedKeyPath == "" {
		return nil, errors.New("chain: no signer key configured")
	}
	if cfg.KeyPassword == "" {
		return nil, errors.New("chain: encrypted key requires a password")
	}

	data, err := os.ReadFile(cfg.EncryptedKeyPath)
	if err != nil {
		return nil, fmt.Errorf("chain: read key file: %w", err)
	}

	keyHex, err := decryptKey(data, cfg.KeyPassword)
	if err != nil {
		return nil, err
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("chain: decrypted key invalid: %w", err)
	}
	return pk, nil
}

// decryptKey reverses the PBKDF2-HMAC-SHA256 + AES-256-GCM scheme used by
// the key file generator.
func decryptKey(data []byte, password string) (string, error) {
	var ek encryptedKeyJSON
	if err := json.Unmarshal(data, &ek); err != nil {
		return "", fmt.Errorf("chain: parse key file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(ek.Salt)
	if err != nil {
		return "", fmt.Errorf("chain: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(ek.Nonce)
	if err != nil {
		return "", fmt.Errorf("chain: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ek.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("chain: decode ciphertext: %w", err)
	}

	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", fmt.Errorf("chain: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("chain: create GCM: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.New("chain: wrong password or corrupted key file")
	}
	return hex.EncodeToString(plain), nil
}
