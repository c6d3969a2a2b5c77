package models

import "time"

// Asset is a target host under observation (spec §3).
//
// Credential fields (SSHKeyEnc, SSHPasswordEnc, SudoPasswordEnc) hold
// AEAD-encrypted ciphertext at rest; only pkg/credentials ever decrypts them,
// and only into transient in-memory plaintext, never back to the database.
type Asset struct {
	ID        string
	Hostname  string
	IP        string
	OSType    OSType
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time

	SSHPort  int
	Username string

	SSHKeyEnc       []byte
	SSHPasswordEnc  []byte
	SudoMethod      SudoMethod
	SudoPasswordEnc []byte

	VaultPath string
}

// CredentialBundle is the plaintext credential material resolved for one
// connection attempt. It never persists — it is constructed by
// pkg/credentials and held only for the lifetime of a connect call.
type CredentialBundle struct {
	Username     string
	SSHKey       string
	SSHPassword  string
	SudoMethod   SudoMethod
	SudoPassword string
}
