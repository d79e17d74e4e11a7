package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"payflow/internal/payment/models"
	dErrors "payflow/pkg/domain-errors"
)

const (
	keyIterations = 100_000
	keyLength     = 32
)

// salt is fixed for key derivation stability across restarts. Rotating it
// invalidates every stored card blob, so treat it as part of the key.
var salt = []byte("payflow_card_vault")

// Vault encrypts card data for at-rest storage. The AEAD key is derived from
// the configured secret with PBKDF2-SHA256 so operators can supply any string.
type Vault struct {
	aead cipher.AEAD
}

// NewVault derives the sealing key and builds the AES-256-GCM AEAD.
func NewVault(encryptionKey string) (*Vault, error) {
	if encryptionKey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "encryption key cannot be empty")
	}
	key := pbkdf2.Key([]byte(encryptionKey), salt, keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// EncryptCard seals the full card payload into a base64 blob for the
// encrypted_card_data column.
func (v *Vault) EncryptCard(card *models.CardData) (string, error) {
	plaintext, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("marshal card data: %w", err)
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptCard opens a blob produced by EncryptCard.
func (v *Vault) DecryptCard(encrypted string) (*models.CardData, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decode card blob: %w", err)
	}
	if len(raw) < v.aead.NonceSize() {
		return nil, fmt.Errorf("card blob too short")
	}

	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open card blob: %w", err)
	}

	var card models.CardData
	if err := json.Unmarshal(plaintext, &card); err != nil {
		return nil, fmt.Errorf("unmarshal card data: %w", err)
	}
	return &card, nil
}

// MaskCardNumber renders a card number safe for logs and display.
func MaskCardNumber(cardNumber string) string {
	if len(cardNumber) <= 4 {
		return strings.Repeat("*", len(cardNumber))
	}
	return strings.Repeat("*", len(cardNumber)-4) + cardNumber[len(cardNumber)-4:]
}
