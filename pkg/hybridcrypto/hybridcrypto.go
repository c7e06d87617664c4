// Package hybridcrypto implements the double-encapsulated hybrid cipher
// specified in spec.md §4.C: an AES-256-GCM data key independently wrapped
// by RSA-OAEP-2048 and ML-KEM-768, so that recovering a ballot requires
// breaking both schemes. It is grounded on the reference ElectionCrypto
// implementation's encrypt_vote/decrypt_vote methods, translated to Go's
// idiomatic stdlib RSA/AES APIs plus circl's ML-KEM-768.
package hybridcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"golang.org/x/xerrors"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	"votingcore/pkg/model"
)

const algorithmID = "hybrid-rsa2048-kyber768"

// Scheme is the ML-KEM-768 KEM scheme used throughout this package.
var Scheme = mlkem768.Scheme()

// ballotBlob is the external ciphertext blob format of spec.md §6. Field
// order matches the lexicographic key order the format requires.
type ballotBlob struct {
	Algorithm       string `json:"algorithm"`
	Ciphertext      string `json:"ciphertext"`
	EncryptedKeyRSA string `json:"encrypted_key_rsa"`
	KyberCiphertext string `json:"kyber_ciphertext,omitempty"`
	KyberMaskedKey  string `json:"kyber_protected_key,omitempty"`
	Nonce           string `json:"nonce"`
	Tag             string `json:"tag"`
}

// oaepLabel binds the RSA-OAEP ciphertext to this scheme, following the
// key-bound-label pattern used for RSA-OAEP KEMs elsewhere in the
// ecosystem (rather than an unlabelled OAEP encryption).
func oaepLabel(pub *rsa.PublicKey) []byte {
	pubBytes := pub.N.Bytes()
	sum := sha256.Sum256(pubBytes)
	return []byte("votingcore/hybridcrypto/rsa-oaep:" + base64.StdEncoding.EncodeToString(sum[:]))
}

// GenerateRSAKeyPair generates a fresh RSA key pair of the given modulus
// size (2048 bits per spec.md §4.C).
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, bits)
}

// GenerateKyberKeyPair generates a fresh ML-KEM-768 key pair.
func GenerateKyberKeyPair() (kem.PublicKey, kem.PrivateKey, error) {
	return Scheme.GenerateKeyPair()
}

// EncryptBallot implements encrypt_ballot: it samples a fresh AES-256 key,
// wraps it under both RSA-OAEP and ML-KEM-768, and encrypts plaintextJSON
// under AES-GCM using that key.
func EncryptBallot(plaintextJSON []byte, rsaPub *rsa.PublicKey, kyberPub kem.PublicKey) ([]byte, error) {
	dataKey := make([]byte, 32)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, xerrors.Errorf("hybridcrypto: sampling data key: %w", err)
	}

	cRSA, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPub, dataKey, oaepLabel(rsaPub))
	if err != nil {
		return nil, xerrors.Errorf("hybridcrypto: rsa-oaep wrap: %w", err)
	}

	ciphertextKyber, sharedSecret, err := Scheme.Encapsulate(kyberPub)
	if err != nil {
		return nil, xerrors.Errorf("hybridcrypto: ml-kem-768 encapsulate: %w", err)
	}
	mask := sharedSecret[:32]
	maskedKey := xorBytes(dataKey, mask)

	ct, nonce, tag, err := aesGCMSeal(dataKey, plaintextJSON)
	if err != nil {
		return nil, xerrors.Errorf("hybridcrypto: aes-gcm seal: %w", err)
	}

	blob := ballotBlob{
		Algorithm:       algorithmID,
		Ciphertext:      b64(ct),
		EncryptedKeyRSA: b64(cRSA),
		KyberCiphertext: b64(ciphertextKyber),
		KyberMaskedKey:  b64(maskedKey),
		Nonce:           b64(nonce),
		Tag:             b64(tag),
	}
	return json.Marshal(blob)
}

// DecryptBallot implements decrypt_ballot, including the legacy RSA-only
// fallback path for ballots encrypted before the hybrid scheme existed.
func DecryptBallot(blobBytes []byte, rsaPriv *rsa.PrivateKey, kyberPriv kem.PrivateKey) ([]byte, error) {
	var blob ballotBlob
	if err := json.Unmarshal(blobBytes, &blob); err != nil {
		return nil, xerrors.Errorf("hybridcrypto: unmarshalling blob: %w", err)
	}

	cRSA, err := unb64(blob.EncryptedKeyRSA)
	if err != nil {
		return nil, xerrors.Errorf("hybridcrypto: decoding encrypted_key_rsa: %w", err)
	}
	k1, rsaErr := rsa.DecryptOAEP(sha256.New(), rand.Reader, rsaPriv, cRSA, oaepLabel(&rsaPriv.PublicKey))

	nonce, err := unb64(blob.Nonce)
	if err != nil {
		return nil, xerrors.Errorf("hybridcrypto: decoding nonce: %w", err)
	}
	tag, err := unb64(blob.Tag)
	if err != nil {
		return nil, xerrors.Errorf("hybridcrypto: decoding tag: %w", err)
	}
	ct, err := unb64(blob.Ciphertext)
	if err != nil {
		return nil, xerrors.Errorf("hybridcrypto: decoding ciphertext: %w", err)
	}

	var k2 []byte
	if blob.KyberCiphertext != "" {
		ctKyber, err := unb64(blob.KyberCiphertext)
		if err != nil {
			return nil, xerrors.Errorf("hybridcrypto: decoding kyber_ciphertext: %w", err)
		}
		maskedKey, err := unb64(blob.KyberMaskedKey)
		if err != nil {
			return nil, xerrors.Errorf("hybridcrypto: decoding kyber_protected_key: %w", err)
		}
		sharedSecret, err := Scheme.Decapsulate(kyberPriv, ctKyber)
		if err != nil {
			return nil, xerrors.Errorf("hybridcrypto: ml-kem-768 decapsulate: %w", err)
		}
		k2 = xorBytes(maskedKey, sharedSecret[:32])
	}

	if rsaErr != nil {
		// The RSA-OAEP unwrap itself failed: this is either a swapped
		// sk_rsa or a genuinely corrupted blob, and OAEP's padding check
		// cannot tell the two apart. If the independent Kyber path still
		// opens the ciphertext, the blob is intact and only the RSA key
		// disagrees - HybridMismatch, not CiphertextTampered - and the
		// plaintext it recovered is discarded regardless, since decrypt
		// requires both paths to agree before it will release anything.
		if k2 != nil {
			if _, openErr := aesGCMOpen(k2, nonce, ct, tag); openErr == nil {
				return nil, model.ErrHybridMismatch
			}
		}
		return nil, model.ErrCiphertextTampered
	}

	dataKey := k1
	if k2 != nil {
		if subtle.ConstantTimeCompare(k1, k2) != 1 {
			return nil, model.ErrHybridMismatch
		}
	}

	plaintext, err := aesGCMOpen(dataKey, nonce, ct, tag)
	if err != nil {
		return nil, model.ErrCiphertextTampered
	}
	return plaintext, nil
}

// SealPrivateKeys implements the key-bundle sealing step of spec.md §4.C:
// it draws a fresh 32-byte K_bundle, AES-GCM-encrypts the concatenated
// private-key JSON under it, and returns the sealed blob and K_bundle. The
// caller is responsible for splitting K_bundle via pkg/shamir and then
// discarding it - this function never persists it.
func SealPrivateKeys(rsaDER, kyberSK []byte) (sealedBlob []byte, kBundle []byte, err error) {
	kBundle = make([]byte, 32)
	if _, err = rand.Read(kBundle); err != nil {
		return nil, nil, xerrors.Errorf("hybridcrypto: sampling bundle key: %w", err)
	}

	plaintext, err := json.Marshal(struct {
		RSA   string `json:"rsa"`
		Kyber string `json:"kyber"`
	}{RSA: b64(rsaDER), Kyber: b64(kyberSK)})
	if err != nil {
		return nil, nil, xerrors.Errorf("hybridcrypto: marshalling key bundle: %w", err)
	}

	ct, nonce, tag, err := aesGCMSeal(kBundle, plaintext)
	if err != nil {
		return nil, nil, xerrors.Errorf("hybridcrypto: sealing key bundle: %w", err)
	}

	sealed := struct {
		Algorithm  string `json:"algorithm"`
		Nonce      string `json:"nonce"`
		Tag        string `json:"tag"`
		Ciphertext string `json:"ciphertext"`
	}{Algorithm: algorithmID, Nonce: b64(nonce), Tag: b64(tag), Ciphertext: b64(ct)}

	sealedBlob, err = json.Marshal(sealed)
	if err != nil {
		return nil, nil, xerrors.Errorf("hybridcrypto: marshalling sealed bundle: %w", err)
	}
	return sealedBlob, kBundle, nil
}

// UnsealPrivateKeys reverses SealPrivateKeys given a reconstructed
// K_bundle. Authentication failure is surfaced as model.ErrInvalidShares
// per spec.md §4.D, so callers never learn whether the failure happened
// at Shamir interpolation or at GCM authentication.
func UnsealPrivateKeys(sealedBlob, kBundle []byte) (rsaDER, kyberSK []byte, err error) {
	var sealed struct {
		Nonce      string `json:"nonce"`
		Tag        string `json:"tag"`
		Ciphertext string `json:"ciphertext"`
	}
	if err := json.Unmarshal(sealedBlob, &sealed); err != nil {
		return nil, nil, model.ErrInvalidShares
	}
	nonce, err1 := unb64(sealed.Nonce)
	tag, err2 := unb64(sealed.Tag)
	ct, err3 := unb64(sealed.Ciphertext)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, nil, model.ErrInvalidShares
	}

	plaintext, err := aesGCMOpen(kBundle, nonce, ct, tag)
	if err != nil {
		return nil, nil, model.ErrInvalidShares
	}

	var bundle struct {
		RSA   string `json:"rsa"`
		Kyber string `json:"kyber"`
	}
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, nil, model.ErrInvalidShares
	}
	rsaDER, err1 = unb64(bundle.RSA)
	kyberSK, err2 = unb64(bundle.Kyber)
	if err1 != nil || err2 != nil {
		return nil, nil, model.ErrInvalidShares
	}
	return rsaDER, kyberSK, nil
}

// --- AES-GCM helpers ---

const gcmNonceSize = 12
const gcmTagSize = 16

func aesGCMSeal(key, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce = make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - gcmTagSize
	return sealed[:ctLen], nonce, sealed[ctLen:], nil
}

func aesGCMOpen(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, err
	}
	combined := append(append([]byte{}, ciphertext...), tag...)
	return gcm.Open(nil, nonce, combined, nil)
}

func xorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
