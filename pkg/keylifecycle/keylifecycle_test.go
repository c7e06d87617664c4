package keylifecycle

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"testing"

	"votingcore/pkg/hybridcrypto"
	"votingcore/pkg/model"
	"votingcore/pkg/shamir"
)

func TestGenerateReconstructRoundTrip(t *testing.T) {
	generated, err := GenerateElectionKeys(3, 5, 2048)
	if err != nil {
		t.Fatalf("GenerateElectionKeys: %v", err)
	}
	if len(generated.Shares) != 5 {
		t.Fatalf("got %d shares, want 5", len(generated.Shares))
	}

	var lines []string
	for _, s := range generated.Shares {
		if s.Index == 1 || s.Index == 3 || s.Index == 4 {
			lines = append(lines, shamir.FormatForDisplay(s))
		}
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 selected shares, got %d", len(lines))
	}

	rsaDER, kyberSK, err := ReconstructPrivateKeys(lines, 3, generated.SealedPrivateKeys)
	if err != nil {
		t.Fatalf("ReconstructPrivateKeys: %v", err)
	}

	rsaPriv, err := x509.ParsePKCS8PrivateKey(rsaDER)
	if err != nil {
		t.Fatalf("parsing reconstructed rsa key: %v", err)
	}
	rsaPrivKey, ok := rsaPriv.(*rsa.PrivateKey)
	if !ok {
		t.Fatalf("reconstructed key is %T, want *rsa.PrivateKey", rsaPriv)
	}
	kyberPriv, err := hybridcrypto.Scheme.UnmarshalBinaryPrivateKey(kyberSK)
	if err != nil {
		t.Fatalf("parsing reconstructed kyber key: %v", err)
	}

	rsaPubAny, kyberPub, err := UnmarshalPublicKeys(generated.PublicKeysJSON)
	if err != nil {
		t.Fatalf("UnmarshalPublicKeys: %v", err)
	}
	rsaPub, ok := rsaPubAny.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("unmarshalled public key is %T, want *rsa.PublicKey", rsaPubAny)
	}

	plaintext := []byte(`{"candidate_id":"C1"}`)
	blob, err := hybridcrypto.EncryptBallot(plaintext, rsaPub, kyberPub)
	if err != nil {
		t.Fatalf("EncryptBallot: %v", err)
	}
	got, err := hybridcrypto.DecryptBallot(blob, rsaPrivKey, kyberPriv)
	if err != nil {
		t.Fatalf("DecryptBallot: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("decrypted %q, want %q", got, plaintext)
	}
}

func TestReconstructInsufficientSharesFails(t *testing.T) {
	generated, err := GenerateElectionKeys(3, 5, 2048)
	if err != nil {
		t.Fatalf("GenerateElectionKeys: %v", err)
	}
	lines := []string{shamir.FormatForDisplay(generated.Shares[0]), shamir.FormatForDisplay(generated.Shares[1])}

	if _, _, err := ReconstructPrivateKeys(lines, 3, generated.SealedPrivateKeys); err != model.ErrInvalidShares {
		t.Fatalf("got err %v, want ErrInvalidShares", err)
	}
}

func TestReconstructWithWrongShareSetFails(t *testing.T) {
	generated, err := GenerateElectionKeys(3, 5, 2048)
	if err != nil {
		t.Fatalf("GenerateElectionKeys: %v", err)
	}

	bogus := []string{
		"SHARE-1: " + string(make([]byte, 128)),
		"SHARE-2: " + string(make([]byte, 128)),
		"SHARE-3: " + string(make([]byte, 128)),
	}
	if _, _, err := ReconstructPrivateKeys(bogus, 3, generated.SealedPrivateKeys); err == nil {
		t.Fatal("expected an error for malformed share input")
	}
}
