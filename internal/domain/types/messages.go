package types

// Envelope is the encrypted payload exchanged between two identities.
type Envelope struct {
	RecipientKeyID KeyID        `json:"recipient_key_id"`
	SenderKeyID    KeyID        `json:"sender_key_id"`
	SenderPublic   X25519Public `json:"sender_public"`
	Ephemeral      X25519Public `json:"ephemeral"`
	Nonce          []byte       `json:"nonce"`
	Ciphertext     []byte       `json:"ciphertext"`
}
