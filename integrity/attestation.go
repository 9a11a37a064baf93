package integrity

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// AttestorCredentials is the persisted key file format.
type AttestorCredentials struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// SignedReport is the exportable, verifiable form of an integrity report.
type SignedReport struct {
	Report    *Report `json:"report"`
	Signature string  `json:"signature"`
	Signer    string  `json:"signer"`
}

// Attestor signs integrity reports with a server-held ECDSA key so exported
// reports can be checked against the published signer address.
type Attestor struct {
	key *ecdsa.PrivateKey
}

// NewAttestor loads the attestation key from keyDir, generating and saving a
// fresh one on first run.
func NewAttestor(keyDir string) (*Attestor, error) {
	keyPath := filepath.Join(keyDir, "attestation_key.json")

	if data, err := os.ReadFile(keyPath); err == nil {
		var creds AttestorCredentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, fmt.Errorf("failed to parse attestation credentials: %w", err)
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to restore attestation key: %w", err)
		}
		return &Attestor{key: key}, nil
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation key: %w", err)
	}

	creds := AttestorCredentials{
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save attestation credentials: %w", err)
	}
	return &Attestor{key: key}, nil
}

// NewAttestorFromKey wraps an existing key, mainly for tests.
func NewAttestorFromKey(key *ecdsa.PrivateKey) *Attestor {
	return &Attestor{key: key}
}

// Address returns the signer address verifiers compare against.
func (a *Attestor) Address() string {
	return crypto.PubkeyToAddress(a.key.PublicKey).Hex()
}

// SignReport signs the Keccak256 digest of the report JSON.
func (a *Attestor) SignReport(rep *Report) (*SignedReport, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(crypto.Keccak256(data), a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign report: %w", err)
	}
	return &SignedReport{
		Report:    rep,
		Signature: hexutil.Encode(sig),
		Signer:    a.Address(),
	}, nil
}

// VerifySignedReport recovers the signing key from the signature and checks
// it against the declared signer address.
func VerifySignedReport(sr *SignedReport) bool {
	if sr == nil || sr.Report == nil {
		return false
	}
	data, err := json.Marshal(sr.Report)
	if err != nil {
		return false
	}
	sig, err := hexutil.Decode(sr.Signature)
	if err != nil {
		return false
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(data), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub).Hex() == sr.Signer
}
