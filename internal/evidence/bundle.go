package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"filippo.io/age"

	"retain/internal/archive"
)

// SchemaVersion identifies the bundle layout for downstream consumers.
const SchemaVersion = "1.0"

// Record is the read-only projection of an archive record that leaves the
// system as compliance evidence. It carries exactly the fields collaborators
// may see and nothing they could write.
type Record struct {
	PublicID          string     `json:"public_id"`
	FileName          string     `json:"file_name"`
	Category          string     `json:"category"`
	MIMEType          string     `json:"mime_type,omitempty"`
	SizeBytes         int64      `json:"size_bytes"`
	Status            string     `json:"status"`
	PublicDescription string     `json:"public_description"`
	ChecksumSHA256    string     `json:"checksum_sha256,omitempty"`
	ClassifiedAt      *time.Time `json:"classified_at,omitempty"`
	VoidedAt          *time.Time `json:"voided_at,omitempty"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`

	Flags struct {
		UsageDetected      bool `json:"usage_detected"`
		FileMissing        bool `json:"file_missing"`
		IntegrityViolation bool `json:"integrity_violation"`
		LateClassification bool `json:"late_classification"`
		ContentModified    bool `json:"content_modified"`
		PriorVoid          bool `json:"prior_void"`
	} `json:"flags"`
}

// Bundle is a portable snapshot of archive state: "these records were, at
// generation time, in these statuses with these fingerprints".
type Bundle struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	GeneratedBy   string    `json:"generated_by"`
	Cutoff        time.Time `json:"compliance_cutoff"`
	Records       []Record  `json:"records"`
}

// NewBundle projects the given records into a bundle.
func NewBundle(actor string, generatedAt, cutoff time.Time, records []*archive.Record) *Bundle {
	b := &Bundle{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   generatedAt.UTC(),
		GeneratedBy:   actor,
		Cutoff:        cutoff.UTC(),
		Records:       make([]Record, 0, len(records)),
	}
	for _, rec := range records {
		b.Records = append(b.Records, project(rec))
	}
	return b
}

func project(rec *archive.Record) Record {
	out := Record{
		PublicID:          rec.PublicID,
		FileName:          rec.FileName,
		Category:          string(rec.Category),
		MIMEType:          rec.MIMEType,
		SizeBytes:         rec.SizeBytes,
		Status:            string(rec.Status),
		PublicDescription: rec.PublicDescription,
		ChecksumSHA256:    rec.ChecksumSHA256,
		ClassifiedAt:      rec.ClassifiedAt,
		VoidedAt:          rec.VoidedAt,
		DeletedAt:         rec.DeletedAt,
		CreatedAt:         rec.CreatedAt,
	}
	out.Flags.UsageDetected = rec.Flags.UsageDetected
	out.Flags.FileMissing = rec.Flags.FileMissing
	out.Flags.IntegrityViolation = rec.Flags.IntegrityViolation
	out.Flags.LateClassification = rec.Flags.LateClassification
	out.Flags.ContentModified = rec.Flags.ContentModified
	out.Flags.PriorVoid = rec.Flags.PriorVoid
	return out
}

// WriteJSON writes the bundle as indented JSON.
func (b *Bundle) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encoding bundle: %w", err)
	}
	return nil
}

// WriteEncrypted writes the bundle age-encrypted to the given recipients.
func (b *Bundle) WriteEncrypted(w io.Writer, recipients ...age.Recipient) error {
	encWriter, err := age.Encrypt(w, recipients...)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if err := b.WriteJSON(encWriter); err != nil {
		return err
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// ReadBundle decodes a plaintext bundle.
func ReadBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	return &b, nil
}

// ReadEncrypted decrypts and decodes a bundle with the given identities.
func ReadEncrypted(r io.Reader, identities ...age.Identity) (*Bundle, error) {
	decReader, err := age.Decrypt(r, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting bundle: %w", err)
	}
	return ReadBundle(decReader)
}

// LoadRecipients parses an age recipients file (one recipient per line).
func LoadRecipients(path string) ([]age.Recipient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipients file: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing recipients file: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in %s", path)
	}
	return recipients, nil
}
