// Package keylifecycle orchestrates election key generation, custodian
// share issuance, and private-key reconstruction, tying together
// pkg/hybridcrypto (key-bundle sealing) and pkg/shamir (threshold
// splitting). Grounded on the reference generate_election_keys and
// reconstruct_private_keys methods.
package keylifecycle

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"golang.org/x/xerrors"

	"github.com/cloudflare/circl/kem"

	"votingcore/pkg/hybridcrypto"
	"votingcore/pkg/model"
	"votingcore/pkg/shamir"
)

// bundleKeyLen is the length in bytes of K_bundle, the AES-256 key used to
// seal the private-key bundle.
const bundleKeyLen = 32

// GeneratedKeys is the output of GenerateElectionKeys: the public material
// to publish on the election, the sealed private-key blob to persist, and
// the shares to hand to custodians during the ceremony. Shares must never
// be persisted by the caller past the ceremony.
type GeneratedKeys struct {
	PublicKeysJSON    []byte
	SealedPrivateKeys []byte
	Shares            []shamir.Share
}

// publicKeysBlob is the JSON shape of Election.PublicKeys. Despite its key
// name, rsa_public_key_pem holds base64 of the PKIX DER public key, not a
// PEM-armoured block.
type publicKeysBlob struct {
	RSAPublicKeyPEM string `json:"rsa_public_key_pem"`
	KyberPublicKey  string `json:"kyber_public_key"`
}

// GenerateElectionKeys implements generate_election_keys: one RSA-2048
// keypair, one ML-KEM-768 keypair, one sealed private-key bundle, and a
// (t,n) Shamir split of the bundle key.
func GenerateElectionKeys(t, n, rsaBits int) (*GeneratedKeys, error) {
	rsaPriv, err := hybridcrypto.GenerateRSAKeyPair(rsaBits)
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: generating rsa keypair: %w", err)
	}
	kyberPub, kyberPriv, err := hybridcrypto.GenerateKyberKeyPair()
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: generating kyber keypair: %w", err)
	}

	rsaDER, err := x509.MarshalPKCS8PrivateKey(rsaPriv)
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: marshalling rsa private key: %w", err)
	}
	kyberSKBytes, err := kyberPriv.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: marshalling kyber private key: %w", err)
	}

	sealedBlob, kBundle, err := hybridcrypto.SealPrivateKeys(rsaDER, kyberSKBytes)
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: sealing private key bundle: %w", err)
	}

	shares, err := shamir.Split(kBundle, t, n)
	// Discard kBundle regardless of outcome; it must never outlive this call.
	for i := range kBundle {
		kBundle[i] = 0
	}
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: splitting bundle key: %w", err)
	}

	rsaDERPub, err := x509.MarshalPKIXPublicKey(&rsaPriv.PublicKey)
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: marshalling rsa public key: %w", err)
	}
	kyberPubBytes, err := kyberPub.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: marshalling kyber public key: %w", err)
	}

	publicJSON, err := json.Marshal(publicKeysBlob{
		RSAPublicKeyPEM: base64.StdEncoding.EncodeToString(rsaDERPub),
		KyberPublicKey:  base64.StdEncoding.EncodeToString(kyberPubBytes),
	})
	if err != nil {
		return nil, xerrors.Errorf("keylifecycle: marshalling public keys: %w", err)
	}

	return &GeneratedKeys{
		PublicKeysJSON:    publicJSON,
		SealedPrivateKeys: sealedBlob,
		Shares:            shares,
	}, nil
}

// ReconstructPrivateKeys implements reconstruct_private_keys: it
// normalises share formatting, recovers K_bundle via pkg/shamir, and
// AES-GCM-decrypts the sealed private-key bundle. Any failure - whether
// at interpolation or at GCM authentication - is surfaced uniformly as
// model.ErrInvalidShares, matching spec.md §4.D's non-leaking contract.
func ReconstructPrivateKeys(rawShareLines []string, t int, sealedBlob []byte) (rsaDER []byte, kyberSK []byte, err error) {
	shares := make([]shamir.Share, 0, len(rawShareLines))
	for _, line := range rawShareLines {
		s, err := shamir.ParseShareInput(line)
		if err != nil {
			return nil, nil, model.ErrInvalidShares
		}
		shares = append(shares, s)
	}

	kBundle, err := shamir.Reconstruct(shares, t, bundleKeyLen)
	if err != nil {
		return nil, nil, model.ErrInvalidShares
	}
	defer func() {
		for i := range kBundle {
			kBundle[i] = 0
		}
	}()

	return hybridcrypto.UnsealPrivateKeys(sealedBlob, kBundle)
}

// UnmarshalPublicKeys parses Election.PublicKeys back into usable key
// handles for encryption.
func UnmarshalPublicKeys(blob []byte) (rsaPub any, kyberPub kem.PublicKey, err error) {
	var pkb publicKeysBlob
	if err := json.Unmarshal(blob, &pkb); err != nil {
		return nil, nil, xerrors.Errorf("keylifecycle: unmarshalling public keys: %w", err)
	}
	rsaPubBytes, err := base64.StdEncoding.DecodeString(pkb.RSAPublicKeyPEM)
	if err != nil {
		return nil, nil, xerrors.Errorf("keylifecycle: decoding rsa public key: %w", err)
	}
	rsaKey, err := x509.ParsePKIXPublicKey(rsaPubBytes)
	if err != nil {
		return nil, nil, xerrors.Errorf("keylifecycle: parsing rsa public key: %w", err)
	}
	kyberPubBytes, err := base64.StdEncoding.DecodeString(pkb.KyberPublicKey)
	if err != nil {
		return nil, nil, xerrors.Errorf("keylifecycle: decoding kyber public key: %w", err)
	}
	kyberPub, err = hybridcrypto.Scheme.UnmarshalBinaryPublicKey(kyberPubBytes)
	if err != nil {
		return nil, nil, xerrors.Errorf("keylifecycle: parsing kyber public key: %w", err)
	}
	return rsaKey, kyberPub, nil
}
