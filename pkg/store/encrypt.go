// pkg/store/encrypt.go

package store

import (
    "bytes"
    "crypto/aes"
    "crypto/cipher"
    "crypto/rand"
    "crypto/sha256"
    "errors"
    "fmt"
    "io"

    "golang.org/x/crypto/pbkdf2"
)

type Encryptor interface {
    Encrypt(plaintext []byte) ([]byte, error)
    Decrypt(ciphertext []byte) ([]byte, error)
}

const (
    saltSize   = 16
    keyRounds  = 100000
    aesKeySize = 32
)

type aesEncryptor struct {
    passphrase []byte
}

// NewAESEncryptor derives a fresh AES-256-GCM key from passphrase for every
// message; the salt and nonce are stored in front of the ciphertext.
func NewAESEncryptor(passphrase string) Encryptor {
    return &aesEncryptor{[]byte(passphrase)}
}

func (e *aesEncryptor) gcm(salt []byte) (cipher.AEAD, error) {
    key := pbkdf2.Key(e.passphrase, salt, keyRounds, aesKeySize, sha256.New)
    block, err := aes.NewCipher(key)
    if err != nil {
        return nil, err
    }
    return cipher.NewGCM(block)
}

func (e *aesEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
    salt := make([]byte, saltSize)
    if _, err := io.ReadFull(rand.Reader, salt); err != nil {
        return nil, err
    }
    aead, err := e.gcm(salt)
    if err != nil {
        return nil, err
    }
    nonce := make([]byte, aead.NonceSize())
    if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
        return nil, err
    }
    buf := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
    buf = append(buf, salt...)
    buf = append(buf, nonce...)
    return aead.Seal(buf, nonce, plaintext, nil), nil
}

func (e *aesEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
    if len(ciphertext) < saltSize {
        return nil, errors.New("ciphertext too short")
    }
    aead, err := e.gcm(ciphertext[:saltSize])
    if err != nil {
        return nil, err
    }
    rest := ciphertext[saltSize:]
    if len(rest) < aead.NonceSize() {
        return nil, errors.New("ciphertext too short")
    }
    plain, err := aead.Open(nil, rest[:aead.NonceSize()], rest[aead.NonceSize():], nil)
    if err != nil {
        return nil, fmt.Errorf("decrypt snapshot: %s", err)
    }
    return plain, nil
}

// encrypted seals whole snapshots; single chunks stay in the clear.
type encrypted struct {
    Store
    enc Encryptor
}

// NewEncrypted returns a store whose snapshots are encrypted with enc.
func NewEncrypted(s Store, enc Encryptor) Store {
    return &encrypted{s, enc}
}

func (e *encrypted) Name() string {
    return fmt.Sprintf("%s(encrypted)", e.Store.Name())
}

func (e *encrypted) Save(w io.Writer) error {
    var buf bytes.Buffer
    if err := e.Store.Save(&buf); err != nil {
        return err
    }
    ciphertext, err := e.enc.Encrypt(buf.Bytes())
    if err != nil {
        return err
    }
    _, err = w.Write(ciphertext)
    return err
}

func (e *encrypted) Load(r io.Reader) error {
    ciphertext, err := io.ReadAll(r)
    if err != nil {
        return err
    }
    plain, err := e.enc.Decrypt(ciphertext)
    if err != nil {
        return err
    }
    return e.Store.Load(bytes.NewReader(plain))
}

func (e *encrypted) Unwrap() Store { return e.Store }
