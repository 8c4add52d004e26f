package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/xraph/tally/id"
)

// ErrChainBroken is returned when a record's hash or back-link does not verify.
var ErrChainBroken = errors.New("event: hash chain broken")

// Record is one entry of the event log.
type Record struct {
	Seq        uint64     `json:"seq"`
	ID         id.EventID `json:"id"`
	Kind       Kind       `json:"kind"`
	OccurredAt time.Time  `json:"occurred_at"`
	Payload    Event      `json:"payload"`
	PrevHash   Hash       `json:"prev_hash"`
	Hash       Hash       `json:"hash"`
}

// Created returns the payload as InvoiceCreated when the record holds one.
func (r Record) Created() (InvoiceCreated, bool) {
	e, ok := r.Payload.(InvoiceCreated)
	return e, ok
}

// Paid returns the payload as InvoicePaid when the record holds one.
func (r Record) Paid() (InvoicePaid, bool) {
	e, ok := r.Payload.(InvoicePaid)
	return e, ok
}

// hashInput is what a record hash commits to.
type hashInput struct {
	_          struct{} `cbor:",toarray"`
	Seq        uint64
	ID         string
	Kind       Kind
	OccurredAt int64
	Payload    cbor.RawMessage
	PrevHash   []byte
}

func (r Record) computeHash() (Hash, error) {
	payload, err := MarshalPayload(r.Payload)
	if err != nil {
		return Hash{}, err
	}
	data, err := encMode.Marshal(hashInput{
		Seq:        r.Seq,
		ID:         r.ID.String(),
		Kind:       r.Kind,
		OccurredAt: r.OccurredAt.UnixNano(),
		Payload:    payload,
		PrevHash:   r.PrevHash[:],
	})
	if err != nil {
		return Hash{}, fmt.Errorf("event: encode record %d: %w", r.Seq, err)
	}
	return keyedHash(data), nil
}

// VerifyChain checks that records form an unbroken chain starting after prev.
// Pass the zero Hash to verify from the beginning of a log.
func VerifyChain(prev Hash, records []Record) error {
	for _, r := range records {
		if r.PrevHash != prev {
			return fmt.Errorf("%w: record %d links to %s, want %s", ErrChainBroken, r.Seq, r.PrevHash, prev)
		}
		want, err := r.computeHash()
		if err != nil {
			return err
		}
		if r.Hash != want {
			return fmt.Errorf("%w: record %d hash mismatch", ErrChainBroken, r.Seq)
		}
		prev = r.Hash
	}
	return nil
}

type recordJSON struct {
	Seq        uint64          `json:"seq"`
	ID         id.EventID      `json:"id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
	PrevHash   Hash            `json:"prev_hash"`
	Hash       Hash            `json:"hash"`
}

// UnmarshalJSON decodes the payload into the variant named by kind.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := unmarshalPayloadJSON(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	*r = Record{
		Seq:        raw.Seq,
		ID:         raw.ID,
		Kind:       raw.Kind,
		OccurredAt: raw.OccurredAt,
		Payload:    payload,
		PrevHash:   raw.PrevHash,
		Hash:       raw.Hash,
	}
	return nil
}

func (w wireRecord) record() (Record, error) {
	eventID, err := id.ParseEventID(w.ID)
	if err != nil {
		return Record{}, fmt.Errorf("event: decode record %d: %w", w.Seq, err)
	}
	payload, err := UnmarshalPayload(w.Kind, w.Payload)
	if err != nil {
		return Record{}, err
	}
	r := Record{
		Seq:        w.Seq,
		ID:         eventID,
		Kind:       w.Kind,
		OccurredAt: time.Unix(0, w.OccurredAt).UTC(),
		Payload:    payload,
	}
	copy(r.PrevHash[:], w.PrevHash)
	copy(r.Hash[:], w.Hash)
	return r, nil
}
